package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/store"
)

// EventLog is the in-memory append-only per-tenant tail. Watermarks are
// monotonically increasing, fixed-width decimal strings so that
// lexicographic order equals append order (the same trick
// dwn/filter.EncodeKey uses for numbers), making them directly usable as
// store.Cursor-style query-from tokens.
type EventLog struct {
	mu   sync.Mutex
	logs map[string][]store.Event
	seq  map[string]uint64
}

// NewEventLog creates an empty EventLog.
func NewEventLog() *EventLog {
	return &EventLog{logs: make(map[string][]store.Event), seq: make(map[string]uint64)}
}

// Append implements store.EventLog.
func (l *EventLog) Append(_ context.Context, tenant, messageCid string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq[tenant]++
	watermark := fmt.Sprintf("%020d", l.seq[tenant])
	l.logs[tenant] = append(l.logs[tenant], store.Event{Watermark: watermark, MessageCID: messageCid})
	return watermark, nil
}

// QueryFrom implements store.EventLog: returns every event after cursor
// (exclusive) that fs matches. EventLog entries are intentionally thin
// (messageCid only), so fs is evaluated against a single "messageCid"
// property: a filter on any other property matches no event, and richer
// filtering is left to callers that join back against MessageStore.Get.
// When fs is empty every event matches.
func (l *EventLog) QueryFrom(_ context.Context, tenant, cursor string, fs filter.Set) ([]store.Event, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.logs[tenant]
	start := 0
	if cursor != "" {
		for i, e := range events {
			if e.Watermark == cursor {
				start = i + 1
				break
			}
		}
	}

	out := make([]store.Event, 0, len(events)-start)
	for _, e := range events[start:] {
		if len(fs) == 0 {
			out = append(out, e)
			continue
		}
		// EventLog rows carry no indices of their own; a non-empty filter
		// set over the raw log is satisfied only by matching messageCid
		// (for example via a OneOf of messageCids).
		if matchesMessageCid(fs, e.MessageCID) {
			out = append(out, e)
		}
	}

	next := cursor
	if len(out) > 0 {
		next = out[len(out)-1].Watermark
	}
	return out, next, nil
}

func matchesMessageCid(fs filter.Set, messageCid string) bool {
	return fs.Matches(map[string]filter.Scalar{"messageCid": filter.String(messageCid)})
}
