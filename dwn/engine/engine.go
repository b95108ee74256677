// Package engine wires the validator, authorizer, storage trio, and
// query/subscribe machinery into one ready-to-serve Handler. Grounded on the
// teacher's massifs package root (massifs.go), which likewise collects a
// handful of independently testable collaborators behind one constructor
// for callers that just want a working node.
package engine

import (
	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/datatrails/go-dwn/dwn/authz"
	"github.com/datatrails/go-dwn/dwn/handler"
	"github.com/datatrails/go-dwn/dwn/query"
	"github.com/datatrails/go-dwn/dwn/store"
	"github.com/datatrails/go-dwn/dwn/store/memstore"
	"github.com/datatrails/go-dwn/dwn/validate"
	"github.com/datatrails/go-dwn/internal/jws"
)

// Config holds the tunables New needs beyond its storage/resolver
// collaborators.
type Config struct {
	// SubscriptionBufferSize bounds per-subscriber live-delivery backlog
	// before a subscriber is dropped for overflow. Zero uses
	// query.DefaultSubscriptionBufferSize.
	SubscriptionBufferSize int
}

// Engine is a fully wired node: every Handler method is safe to call
// concurrently across tenants.
type Engine struct {
	*handler.Handler
}

// New builds an Engine over caller-supplied storage backends and DID
// resolver.
func New(log logger.Logger, resolver jws.Resolver, ms store.MessageStore, ds store.DataStore, el store.EventLog, cfg Config) *Engine {
	if cfg.SubscriptionBufferSize == 0 {
		cfg.SubscriptionBufferSize = query.DefaultSubscriptionBufferSize
	}

	v := validate.New(resolver)
	lookup := newStoreLookup(ms)
	a := authz.New(lookup)
	qe, bus := query.New(log, ms, query.Config{SubscriptionBufferSize: cfg.SubscriptionBufferSize})
	h := handler.New(log, v, a, lookup, ms, ds, el, qe, bus)
	return &Engine{Handler: h}
}

// NewInMemory builds an Engine over the package's in-memory reference
// storage, the configuration a single-process node or a test exercises.
func NewInMemory(log logger.Logger, resolver jws.Resolver, cfg Config) *Engine {
	return New(log, resolver, memstore.New(), memstore.NewDataStore(), memstore.NewEventLog(), cfg)
}
