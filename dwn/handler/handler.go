// Package handler implements the per-method request pipeline: parse the
// inbound message's integrity, authorize it, apply its effect to storage,
// and emit it to the event log and live subscribers. Grounded on the
// teacher's massifs/massifcommitter.go, which runs the same
// shape of pipeline (verify candidate, decide whether it extends the
// accepted log, commit, then let readers observe the result) for leaf
// appends instead of DWN messages.
package handler

import (
	"context"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/datatrails/go-dwn/dwn/authz"
	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/query"
	"github.com/datatrails/go-dwn/dwn/store"
	"github.com/datatrails/go-dwn/dwn/validate"
)

// Handler wires the validator, authorizer, and per-tenant storage trio into
// the request pipeline every interface/method handler below runs. It holds
// no per-request state; a single Handler serves every tenant.
type Handler struct {
	Log        logger.Logger
	Validator  *validate.Validator
	Authorizer *authz.Authorizer
	Lookup     authz.RecordLookup
	Messages   store.MessageStore
	Data       store.DataStore
	Events     store.EventLog
	Query      *query.Engine
	Bus        *query.Bus
}

// New builds a Handler from its collaborators.
func New(log logger.Logger, v *validate.Validator, a *authz.Authorizer, lookup authz.RecordLookup,
	ms store.MessageStore, ds store.DataStore, el store.EventLog, qe *query.Engine, bus *query.Bus) *Handler {
	return &Handler{
		Log: log, Validator: v, Authorizer: a, Lookup: lookup,
		Messages: ms, Data: ds, Events: el, Query: qe, Bus: bus,
	}
}

// Reply is the uniform result of running a message through the pipeline.
type Reply struct {
	Status       dwnerr.Status
	Messages     []*message.Message
	NextCursor   string
	Subscription *query.Subscription
}

func accepted(msgs ...*message.Message) *Reply {
	return &Reply{Status: dwnerr.StatusAccepted, Messages: msgs}
}

// now is split out so it reads as a single seam in the pipeline even though,
// like the teacher, this package calls time.Now() directly rather than
// injecting a clock.
func now() string {
	return message.FormatTimestamp(time.Now())
}

// commitWrite stages a message's durable effects in order — blob (already
// staged by the caller, if any), index, log — compensating backwards on any
// failure so a cancelled or failing commit never leaves a partial write
// behind.
func (h *Handler) commitWrite(ctx context.Context, tenant string, m *message.Message, idx store.Indices, blobCID, blobRecordID string) (string, string, error) {
	cid, err := m.MessageCID()
	if err != nil {
		return "", "", dwnerr.Internal("MessageCidError", err)
	}

	if err := h.Messages.Put(ctx, tenant, m, idx); err != nil {
		h.compensate(ctx, tenant, blobRecordID, blobCID)
		return "", "", dwnerr.Internal("StorePutError", err)
	}

	watermark, err := h.Events.Append(ctx, tenant, cid)
	if err != nil {
		_ = h.Messages.Delete(ctx, tenant, cid)
		h.compensate(ctx, tenant, blobRecordID, blobCID)
		return "", "", dwnerr.Internal("EventLogAppendError", err)
	}

	h.Bus.Publish(tenant, store.Event{Watermark: watermark, MessageCID: cid}, m, idx)
	return cid, watermark, nil
}

func (h *Handler) compensate(ctx context.Context, tenant, recordID, dataCID string) {
	if dataCID == "" {
		return
	}
	if err := h.Data.Delete(ctx, tenant, recordID, dataCID); err != nil {
		h.Log.Errorf("handler: compensating blob delete failed tenant=%s recordId=%s dataCid=%s: %v", tenant, recordID, dataCID, err)
	}
}

// reindexAsSuperseded re-puts a previously dominant message with
// isLatestBaseState flipped to false, the index-maintenance step every
// dominance change triggers.
func (h *Handler) reindexAsSuperseded(ctx context.Context, tenant string, m *message.Message) error {
	cid, err := m.MessageCID()
	if err != nil {
		return err
	}
	idx := buildIndices(m, cid, attesterOf(m), false)
	return h.Messages.Put(ctx, tenant, m, idx)
}
