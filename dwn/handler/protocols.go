package handler

import (
	"context"

	"github.com/datatrails/go-dwn/dwn/authz"
	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/store"
)

// ProtocolsConfigure installs a protocol definition. Only the tenant may
// configure its own protocols; a later configure for the same protocol URL
// supersedes the prior one (the RecordLookup implementation resolves the
// newest one by messageTimestamp).
func (h *Handler) ProtocolsConfigure(ctx context.Context, tenant string, m *message.Message) (*Reply, error) {
	author, owner, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Author = author

	if err := h.Authorizer.Authorize(ctx, authz.Request{
		Tenant: tenant, Message: m, Author: author, Owner: owner, Now: now(),
	}); err != nil {
		return nil, err
	}

	cid, err := m.MessageCID()
	if err != nil {
		return nil, dwnerr.Internal("MessageCidError", err)
	}
	idx := buildIndices(m, cid, "", true)
	idx["protocol"] = filter.String(m.Descriptor.Definition.Protocol)
	if _, _, err := h.commitWrite(ctx, tenant, m, idx, "", ""); err != nil {
		return nil, err
	}
	return accepted(m), nil
}

// ProtocolsQuery returns every ProtocolsConfigure the requester may see: all
// of them for the tenant itself, only published ones for anyone else.
func (h *Handler) ProtocolsQuery(ctx context.Context, tenant string, m *message.Message, protocol string) (*Reply, error) {
	author, _, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Author = author

	fs := filter.Set{filter.Filter{
		"interface": filter.Equality(filter.String(string(message.InterfaceProtocols))),
		"method":    filter.Equality(filter.String(string(message.MethodConfigure))),
	}}
	if protocol != "" {
		fs[0]["protocol"] = filter.Equality(filter.String(protocol))
	}

	res, err := h.Messages.Query(ctx, tenant, fs, store.QueryOptions{})
	if err != nil {
		return nil, dwnerr.Internal("StoreQueryError", err)
	}

	visible := make([]*message.Message, 0, len(res.Messages))
	for _, candidate := range res.Messages {
		if author == tenant || (candidate.Descriptor.Definition != nil && candidate.Descriptor.Definition.Published) {
			visible = append(visible, candidate)
		}
	}
	return &Reply{Status: dwnerr.StatusOK, Messages: visible}, nil
}
