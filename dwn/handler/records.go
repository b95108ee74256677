package handler

import (
	"context"
	"fmt"
	"io"

	"github.com/datatrails/go-dwn/dwn/authz"
	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/query"
	"github.com/datatrails/go-dwn/dwn/record"
	"github.com/datatrails/go-dwn/dwn/store"
)

// recordState loads every existing write/delete sharing recordID and folds
// them down to the record's current state, its initial write, and its
// current dominant entry — the three things record.DecideWrite and
// record.DecideDelete need. state is StateAbsent and initial/dominant are
// nil when recordID has never been written.
func (h *Handler) recordState(ctx context.Context, tenant, recordID string) (state record.State, initial, dominant *message.Message, all []*message.Message, err error) {
	res, err := h.Messages.Query(ctx, tenant, filter.Set{filter.Filter{"recordId": filter.Equality(filter.String(recordID))}}, store.QueryOptions{})
	if err != nil {
		return record.StateAbsent, nil, nil, nil, err
	}
	all = res.Messages
	if len(all) == 0 {
		return record.StateAbsent, nil, nil, nil, nil
	}

	dominant = all[0]
	for _, m := range all[1:] {
		dominant, err = record.Dominant(dominant, m)
		if err != nil {
			return record.StateAbsent, nil, nil, nil, err
		}
	}
	for _, m := range all {
		isInitial, ierr := record.IsInitialWrite(&m.Descriptor, m.Author, recordID)
		if ierr != nil {
			return record.StateAbsent, nil, nil, nil, ierr
		}
		if isInitial {
			initial = m
			break
		}
	}
	if dominant.IsRecordsDelete() {
		state = record.StateDeleted
	} else {
		state = record.StatePresent
	}
	return state, initial, dominant, all, nil
}

// RecordsWrite runs a RecordsWrite through the full pipeline. data supplies
// the record's bytes when descriptor.dataCid is set and the payload was not
// inlined as encodedData; callers pass nil for an inline or dataless write.
func (h *Handler) RecordsWrite(ctx context.Context, tenant string, m *message.Message, data io.Reader) (*Reply, error) {
	author, owner, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Author = author

	state, initial, dominant, all, err := h.recordState(ctx, tenant, m.RecordID)
	if err != nil {
		return nil, dwnerr.Internal("RecordStateError", err)
	}
	if state != record.StateAbsent && initial == nil {
		return nil, dwnerr.Internal("MissingInitialWrite", fmt.Errorf("recordId %q has a dominant write but no surviving initial write", m.RecordID))
	}

	decision, err := record.DecideWrite(state, initial, dominant, m, author)
	if err != nil {
		return nil, dwnerr.Internal("DecideWriteError", err)
	}
	if !decision.Accept {
		return nil, dwnerr.Conflict(decision.RejectCode, fmt.Errorf("write rejected for recordId %q", m.RecordID))
	}

	action, _ := message.ToProtocolAction(&m.Descriptor, decision.IsInitial)
	if err := h.Authorizer.Authorize(ctx, authz.Request{
		Tenant: tenant, Message: m, Author: author, Owner: owner,
		Action: action, IsInitialWrite: decision.IsInitial, Now: now(),
	}); err != nil {
		return nil, err
	}

	var blobCID string
	if m.Descriptor.DataCID != "" && m.EncodedData == "" {
		if data == nil {
			return nil, dwnerr.BadRequest("MissingDataPayload", fmt.Errorf("dataCid %q set but no data payload was supplied", m.Descriptor.DataCID))
		}
		written, size, err := h.Data.Put(ctx, tenant, m.RecordID, m.Descriptor.DataCID, data)
		if err != nil {
			return nil, dwnerr.Internal("DataStorePutError", err)
		}
		if written != m.Descriptor.DataCID || size != m.Descriptor.DataSize {
			h.compensate(ctx, tenant, m.RecordID, written)
			return nil, dwnerr.BadRequest("DataCidMismatch", fmt.Errorf("data does not hash to the descriptor's dataCid"))
		}
		blobCID = written
	}

	if decision.IsInitial {
		m.ContextID = contextIDFor(m)
	} else if dominant != nil {
		if err := h.reindexAsSuperseded(ctx, tenant, dominant); err != nil {
			h.compensate(ctx, tenant, m.RecordID, blobCID)
			return nil, dwnerr.Internal("ReindexError", err)
		}
	}

	cid, err := m.MessageCID()
	if err != nil {
		return nil, dwnerr.Internal("MessageCidError", err)
	}
	idx := buildIndices(m, cid, attesterOf(m), true)
	if _, _, err := h.commitWrite(ctx, tenant, m, idx, blobCID, m.RecordID); err != nil {
		return nil, err
	}

	initialCID := cid
	if initial != nil {
		if initialCID, err = initial.MessageCID(); err != nil {
			return nil, dwnerr.Internal("MessageCidError", err)
		}
	}
	h.pruneSuperseded(ctx, tenant, m.RecordID, initialCID, cid, all)

	return accepted(m), nil
}

func contextIDFor(m *message.Message) string {
	if m.Descriptor.Protocol != "" && m.Descriptor.ParentID == "" {
		return m.RecordID
	}
	return m.ContextID
}

// pruneSuperseded deletes the index entry of every write in all that is
// neither the record's initial write nor its new dominant entry, and the blob
// of every such write and of a superseded initial write unless the new
// dominant entry references the same dataCid. It logs (never fails the
// request on) any cleanup error — garbage collection is best-effort once the
// authoritative state is committed.
func (h *Handler) pruneSuperseded(ctx context.Context, tenant, recordID, initialCID, newDominantCID string, all []*message.Message) {
	pruned, err := record.PrunedWrites(initialCID, newDominantCID, all)
	if err != nil {
		h.Log.Errorf("handler: computing pruned writes for recordId=%s: %v", recordID, err)
		return
	}
	dominant, err := h.Messages.Get(ctx, tenant, newDominantCID)
	if err != nil {
		h.Log.Errorf("handler: loading dominant %s for recordId=%s: %v", newDominantCID, recordID, err)
		return
	}
	byCID := make(map[string]*message.Message, len(all))
	for _, m := range all {
		if cid, err := m.MessageCID(); err == nil {
			byCID[cid] = m
		}
	}
	deleteBlob := func(dataCID string) {
		if dataCID == "" || dataCID == dominant.Descriptor.DataCID {
			return
		}
		if err := h.Data.Delete(ctx, tenant, recordID, dataCID); err != nil {
			h.Log.Errorf("handler: pruning blob %s for recordId=%s: %v", dataCID, recordID, err)
		}
	}
	for _, cid := range pruned {
		if err := h.Messages.Delete(ctx, tenant, cid); err != nil {
			h.Log.Errorf("handler: pruning message %s for recordId=%s: %v", cid, recordID, err)
		}
		if m, ok := byCID[cid]; ok {
			deleteBlob(m.Descriptor.DataCID)
		}
	}
	if m, ok := byCID[initialCID]; ok && initialCID != newDominantCID {
		deleteBlob(m.Descriptor.DataCID)
	}
}

// RecordsDelete tombstones recordID: incoming is the RecordsDelete message
// (its own recordId, contextId, and authorization must already name the
// target record).
func (h *Handler) RecordsDelete(ctx context.Context, tenant string, m *message.Message) (*Reply, error) {
	author, owner, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Author = author

	_, initial, dominant, all, err := h.recordState(ctx, tenant, m.RecordID)
	if err != nil {
		return nil, dwnerr.Internal("RecordStateError", err)
	}
	if dominant == nil {
		return nil, dwnerr.NotFound("RecordNotFound", fmt.Errorf("recordId %q does not exist", m.RecordID))
	}

	decision, err := record.DecideDelete(dominant, m)
	if err != nil {
		return nil, dwnerr.Internal("DecideDeleteError", err)
	}
	if !decision.Accept {
		return nil, dwnerr.Conflict(decision.RejectCode, fmt.Errorf("delete rejected for recordId %q", m.RecordID))
	}

	if err := h.Authorizer.Authorize(ctx, authz.Request{
		Tenant: tenant, Message: m, Author: author, Owner: owner, Action: message.ActionDelete, Now: now(),
	}); err != nil {
		return nil, err
	}

	if err := h.reindexAsSuperseded(ctx, tenant, dominant); err != nil {
		return nil, dwnerr.Internal("ReindexError", err)
	}

	cid, err := m.MessageCID()
	if err != nil {
		return nil, dwnerr.Internal("MessageCidError", err)
	}
	idx := buildIndices(m, cid, "", true)
	if _, _, err := h.commitWrite(ctx, tenant, m, idx, "", ""); err != nil {
		return nil, err
	}

	initialCID := cid
	if initial != nil {
		if initialCID, err = initial.MessageCID(); err != nil {
			return nil, dwnerr.Internal("MessageCidError", err)
		}
	}
	h.pruneSuperseded(ctx, tenant, m.RecordID, initialCID, cid, all)

	return accepted(m), nil
}

// RecordsRead returns the record's current dominant write, with its data
// attached via encodedData or a DataStore read.
func (h *Handler) RecordsRead(ctx context.Context, tenant string, m *message.Message) (*Reply, io.ReadCloser, error) {
	author, owner, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	m.Author = author

	_, _, dominant, _, err := h.recordState(ctx, tenant, m.RecordID)
	if err != nil {
		return nil, nil, dwnerr.Internal("RecordStateError", err)
	}
	if dominant == nil || dominant.IsRecordsDelete() {
		return nil, nil, dwnerr.NotFound("RecordNotFound", fmt.Errorf("recordId %q does not exist", m.RecordID))
	}

	if err := h.Authorizer.Authorize(ctx, authz.Request{
		Tenant: tenant, Message: dominant, Author: author, Owner: owner, Action: message.ActionRead, Now: now(),
	}); err != nil {
		return nil, nil, err
	}

	var body io.ReadCloser
	if dominant.Descriptor.DataCID != "" && dominant.EncodedData == "" {
		body, err = h.Data.Get(ctx, tenant, dominant.RecordID, dominant.Descriptor.DataCID)
		if err != nil {
			return nil, nil, dwnerr.Internal("DataStoreGetError", err)
		}
	}
	return accepted(dominant), body, nil
}

// RecordsQuery returns every stored write matching fs that req's author is
// authorized to read, applying visibility per message since a query may
// span records with different owners/recipients/protocol rules.
func (h *Handler) RecordsQuery(ctx context.Context, tenant string, m *message.Message, fs filter.Set, opts store.QueryOptions) (*Reply, error) {
	author, owner, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Author = author

	res, err := h.Query.Query(ctx, tenant, withLatestBaseState(fs), opts)
	if err != nil {
		return nil, err
	}

	visible := make([]*message.Message, 0, len(res.Messages))
	for _, candidate := range res.Messages {
		if err := h.Authorizer.Authorize(ctx, authz.Request{
			Tenant: tenant, Message: candidate, Author: author, Owner: owner, Action: message.ActionQuery, Now: now(),
		}); err == nil {
			visible = append(visible, candidate)
		}
	}

	reply := &Reply{Status: dwnerr.StatusOK, Messages: visible}
	if res.NextCursor != nil {
		reply.NextCursor = res.NextCursor.Encode()
	}
	return reply, nil
}

// RecordsSubscribe installs a live filter against the event bus, authorizing
// each matching write as it arrives before handing it to h.
func (h *Handler) RecordsSubscribe(ctx context.Context, tenant string, m *message.Message, fs filter.Set, deliver query.Handler) (*Reply, error) {
	author, owner, err := h.Validator.Validate(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Author = author

	sub, err := h.Query.Subscribe(ctx, tenant, withLatestBaseState(fs), func(d query.Delivery) error {
		if d.Err != nil || d.Message == nil {
			return deliver(d)
		}
		if authErr := h.Authorizer.Authorize(ctx, authz.Request{
			Tenant: tenant, Message: d.Message, Author: author, Owner: owner, Action: message.ActionSubscribe, Now: now(),
		}); authErr != nil {
			return nil // not visible to this subscriber; keep the subscription open.
		}
		return deliver(d)
	})
	if err != nil {
		return nil, dwnerr.Internal("SubscribeError", err)
	}
	return &Reply{Status: dwnerr.StatusAccepted, Subscription: sub}, nil
}

// withLatestBaseState narrows fs to isLatestBaseState==true unless the
// caller already constrained that property itself.
func withLatestBaseState(fs filter.Set) filter.Set {
	if len(fs) == 0 {
		return filter.Set{filter.Filter{"isLatestBaseState": filter.Equality(filter.Bool(true))}}
	}
	out := make(filter.Set, len(fs))
	for i, f := range fs {
		if _, ok := f["isLatestBaseState"]; ok {
			out[i] = f
			continue
		}
		nf := make(filter.Filter, len(f)+1)
		for k, v := range f {
			nf[k] = v
		}
		nf["isLatestBaseState"] = filter.Equality(filter.Bool(true))
		out[i] = nf
	}
	return out
}
