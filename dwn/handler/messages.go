package handler

import (
	"context"
	"fmt"

	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/query"
)

// requireTenant runs the integrity pipeline and rejects any non-tenant
// author: every Messages interface method is tenant-only (it serves the raw
// event log, which carries no per-record visibility rules of its own).
func (h *Handler) requireTenant(ctx context.Context, tenant string, m *message.Message) error {
	author, _, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return err
	}
	m.Author = author
	if author != tenant {
		return dwnerr.Unauthorized("NotAuthorized", fmt.Errorf("author %q is not tenant %q", author, tenant))
	}
	return nil
}

// MessagesQuery serves the event log's tail matching fs, starting after
// cursor (a watermark, "" for the beginning).
func (h *Handler) MessagesQuery(ctx context.Context, tenant string, m *message.Message, cursor string, fs filter.Set) (*Reply, error) {
	if err := h.requireTenant(ctx, tenant, m); err != nil {
		return nil, err
	}

	events, next, err := h.Events.QueryFrom(ctx, tenant, cursor, fs)
	if err != nil {
		return nil, dwnerr.Internal("EventLogQueryError", err)
	}

	msgs := make([]*message.Message, 0, len(events))
	for _, e := range events {
		got, err := h.Messages.Get(ctx, tenant, e.MessageCID)
		if err != nil {
			h.Log.Errorf("handler: messagesQuery: loading %s: %v", e.MessageCID, err)
			continue
		}
		msgs = append(msgs, got)
	}
	return &Reply{Status: dwnerr.StatusOK, Messages: msgs, NextCursor: next}, nil
}

// MessagesGet resolves one or more messageCids directly, skipping the event
// log.
func (h *Handler) MessagesGet(ctx context.Context, tenant string, m *message.Message, messageCIDs []string) (*Reply, error) {
	if err := h.requireTenant(ctx, tenant, m); err != nil {
		return nil, err
	}

	msgs := make([]*message.Message, 0, len(messageCIDs))
	for _, cid := range messageCIDs {
		got, err := h.Messages.Get(ctx, tenant, cid)
		if err != nil {
			continue
		}
		msgs = append(msgs, got)
	}
	return &Reply{Status: dwnerr.StatusOK, Messages: msgs}, nil
}

// MessagesSubscribe installs a live filter against the raw event bus; every
// accepted write of any interface/method is eligible, not just Records.
func (h *Handler) MessagesSubscribe(ctx context.Context, tenant string, m *message.Message, fs filter.Set, deliver query.Handler) (*Reply, error) {
	if err := h.requireTenant(ctx, tenant, m); err != nil {
		return nil, err
	}

	sub, err := h.Query.Subscribe(ctx, tenant, fs, deliver)
	if err != nil {
		return nil, dwnerr.Internal("SubscribeError", err)
	}
	return &Reply{Status: dwnerr.StatusAccepted, Subscription: sub}, nil
}
