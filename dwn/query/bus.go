package query

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/store"
)

// ErrSubscriptionOverflow is delivered to a subscription's handler, exactly
// once, when the subscription could not keep up with the bus and was
// dropped.
var ErrSubscriptionOverflow = errors.New("query: subscription buffer overflow")

// Delivery is one event handed to a subscription's Handler. Err is set only
// on the final delivery of a subscription that is being closed because it
// overflowed; Event and Message are unset in that case.
type Delivery struct {
	Event   store.Event
	Message *message.Message
	Err     error
}

// Handler processes one Delivery. Returning a non-nil error, like an
// overflow, detaches the subscription: the Handler is not called again
// afterwards.
type Handler func(Delivery) error

// Bus is the in-process publish/subscribe fan-out every successful write is
// broadcast to, grounded on the teacher's logdircache.go: a small amount of
// shared mutable state (here, the live subscriber set) guarded by one lock,
// with per-subscriber work happening off that lock on its own goroutine.
type Bus struct {
	log logger.Logger
	cfg Config

	mu   sync.Mutex
	subs map[string]map[string]*subscriber // tenant -> id -> subscriber
}

func newBus(log logger.Logger, cfg Config) *Bus {
	return &Bus{log: log, cfg: cfg, subs: make(map[string]map[string]*subscriber)}
}

type subscriber struct {
	id       string
	tenant   string
	filter   filter.Set
	deliver  chan Delivery
	overflow chan error
}

// Subscription is the caller-held handle to a live subscription. Closing it
// is idempotent and safe to call from any goroutine, including the
// subscription's own handler.
type Subscription struct {
	id     string
	tenant string
	bus    *Bus
}

// ID is the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Close removes the subscription from the bus, so no event published after
// Close returns is queued for it. Deliveries already buffered may still
// reach its handler, and its delivery goroutine keeps running until the
// context passed to Subscribe is cancelled.
func (s *Subscription) Close() {
	s.bus.remove(s.tenant, s.id)
}

// Subscribe registers fs against the bus and starts delivering matching
// events to h in append order, on a dedicated goroutine, until ctx is
// cancelled, the subscription overflows, or h returns an error. Closing the
// subscription stops new events from being queued but does not end that
// goroutine.
func (b *Bus) Subscribe(ctx context.Context, tenant string, fs filter.Set, h Handler) (*Subscription, error) {
	sub := &subscriber{
		id:       uuid.NewString(),
		tenant:   tenant,
		filter:   fs,
		deliver:  make(chan Delivery, b.cfg.bufferSize()),
		overflow: make(chan error, 1),
	}

	b.mu.Lock()
	shard, ok := b.subs[tenant]
	if !ok {
		shard = make(map[string]*subscriber)
		b.subs[tenant] = shard
	}
	shard[sub.id] = sub
	b.mu.Unlock()

	handle := &Subscription{id: sub.id, tenant: tenant, bus: b}
	go b.run(ctx, sub, h)
	return handle, nil
}

func (b *Bus) run(ctx context.Context, sub *subscriber, h Handler) {
	defer b.remove(sub.tenant, sub.id)
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.overflow:
			b.log.Debugf("query: subscription %s closed: %v", sub.id, err)
			_ = h(Delivery{Err: err})
			return
		case d, ok := <-sub.deliver:
			if !ok {
				return
			}
			if err := h(d); err != nil {
				b.log.Debugf("query: subscription %s handler error, closing: %v", sub.id, err)
				return
			}
		}
	}
}

func (b *Bus) remove(tenant, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	shard, ok := b.subs[tenant]
	if !ok {
		return
	}
	delete(shard, id)
	if len(shard) == 0 {
		delete(b.subs, tenant)
	}
}

// Publish broadcasts event/msg to every live subscription on tenant whose
// filter set matches indices. Delivery is non-blocking: a subscriber whose
// buffer is full is dropped and notified with ErrSubscriptionOverflow
// rather than slowing down the publisher, since durable storage writes must
// never wait on live fan-out.
func (b *Bus) Publish(tenant string, event store.Event, msg *message.Message, indices store.Indices) {
	b.mu.Lock()
	shard := b.subs[tenant]
	matched := make([]*subscriber, 0, len(shard))
	for _, sub := range shard {
		if sub.filter.Matches(indices) {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matched {
		select {
		case sub.deliver <- Delivery{Event: event, Message: msg}:
		default:
			select {
			case sub.overflow <- ErrSubscriptionOverflow:
			default:
			}
		}
	}
}
