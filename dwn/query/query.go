// Package query implements the read side of a tenant's message store: the
// filtered/paginated Query path and the live Subscribe path. It is grounded
// on the teacher's massifs/massifreader.go (a thin typed reader sitting in
// front of a generic blob store) and logdircache.go (logger threaded through
// a constructor, never a package singleton).
package query

import (
	"context"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/store"
)

// Config tunes the engine's behaviour. The zero value is usable: every
// field falls back to a documented default.
type Config struct {
	// SubscriptionBufferSize bounds how many undelivered events a single
	// subscription may accumulate before it is dropped as backpressure.
	// Defaults to DefaultSubscriptionBufferSize.
	SubscriptionBufferSize int
}

// DefaultSubscriptionBufferSize is used when Config.SubscriptionBufferSize
// is zero or negative.
const DefaultSubscriptionBufferSize = 64

func (c Config) bufferSize() int {
	if c.SubscriptionBufferSize > 0 {
		return c.SubscriptionBufferSize
	}
	return DefaultSubscriptionBufferSize
}

// Engine serves RecordsQuery/MessagesQuery reads and RecordsSubscribe/
// MessagesSubscribe live fan-out over a single tenant-scoped MessageStore.
// The Bus is the only piece of state Engine shares across requests; the
// MessageStore itself owns the durable index.
type Engine struct {
	log   logger.Logger
	store store.MessageStore
	bus   *Bus
}

// New builds an Engine. The returned Bus is exposed so the handler package
// can publish events into it once a write durably commits.
func New(log logger.Logger, ms store.MessageStore, cfg Config) (*Engine, *Bus) {
	bus := newBus(log, cfg)
	return &Engine{log: log, store: ms, bus: bus}, bus
}

// Query runs fs against the tenant's message store and returns one page of
// results. It logs at Debug level the property filter.SelectProbeProperty
// picks for fs; that choice is only logged and is not passed to the store,
// which plans its own scan.
func (e *Engine) Query(ctx context.Context, tenant string, fs filter.Set, opts store.QueryOptions) (store.QueryResult, error) {
	if prop, ok := filter.SelectProbeProperty(fs); ok {
		e.log.Debugf("query: tenant=%s probe=%s sort=%s", tenant, prop, opts.SortProperty)
	} else {
		e.log.Debugf("query: tenant=%s probe=<none> sort=%s", tenant, opts.SortProperty)
	}
	res, err := e.store.Query(ctx, tenant, fs, opts)
	if err != nil {
		e.log.Errorf("query: tenant=%s failed: %v", tenant, err)
		return store.QueryResult{}, err
	}
	return res, nil
}

// Subscribe registers a live filter against the engine's event bus. See
// Bus.Subscribe for delivery and backpressure semantics.
func (e *Engine) Subscribe(ctx context.Context, tenant string, fs filter.Set, h Handler) (*Subscription, error) {
	return e.bus.Subscribe(ctx, tenant, fs, h)
}

// Bus returns the engine's event bus, for callers (the handler package)
// that need to Publish directly.
func (e *Engine) Bus() *Bus {
	return e.bus
}
