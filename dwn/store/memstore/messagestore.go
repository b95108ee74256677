// Package memstore is an in-memory reference implementation of the
// store.MessageStore / store.DataStore / store.EventLog contracts, grounded
// on the teacher's massifs/logdircache.go (per-tenant map guarded by its own
// lock, entries created lazily on first access) and massifs/storage.Cacher
// (a small in-process cache sitting in front of durable storage). It is the
// implementation the engine and its tests use by default; a production
// deployment swaps this package out for a backend satisfying the same
// interfaces.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/store"
)

type entry struct {
	msg     *message.Message
	indices store.Indices
}

type tenantShard struct {
	mu      sync.RWMutex
	byCID   map[string]*entry
	cidList []string // insertion order, for deterministic iteration before sort
}

// MessageStore is the in-memory MessageStore.
type MessageStore struct {
	mu      sync.Mutex // guards tenants map only; per-tenant work uses the shard lock
	tenants map[string]*tenantShard
}

// New creates an empty MessageStore.
func New() *MessageStore {
	return &MessageStore{tenants: make(map[string]*tenantShard)}
}

func (s *MessageStore) shard(tenant string) *tenantShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.tenants[tenant]
	if !ok {
		sh = &tenantShard{byCID: make(map[string]*entry)}
		s.tenants[tenant] = sh
	}
	return sh
}

// Put implements store.MessageStore. Re-putting the same messageCid is a
// no-op overwrite of identical content — re-processing an already-stored
// message must not duplicate or corrupt it.
func (s *MessageStore) Put(_ context.Context, tenant string, msg *message.Message, indices store.Indices) error {
	cid, err := msg.MessageCID()
	if err != nil {
		return err
	}
	sh := s.shard(tenant)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.byCID[cid]; !exists {
		sh.cidList = append(sh.cidList, cid)
	}
	sh.byCID[cid] = &entry{msg: msg, indices: indices}
	return nil
}

// Get implements store.MessageStore.
func (s *MessageStore) Get(_ context.Context, tenant, messageCid string) (*message.Message, error) {
	sh := s.shard(tenant)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.byCID[messageCid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.msg, nil
}

// Delete implements store.MessageStore.
func (s *MessageStore) Delete(_ context.Context, tenant, messageCid string) error {
	sh := s.shard(tenant)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.byCID, messageCid)
	for i, c := range sh.cidList {
		if c == messageCid {
			sh.cidList = append(sh.cidList[:i], sh.cidList[i+1:]...)
			break
		}
	}
	return nil
}

// Clear implements store.MessageStore (test-only).
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = make(map[string]*tenantShard)
}

// Query implements store.MessageStore: scans every entry of the tenant's
// shard, applies the full filter set, sorts on q.SortProperty using
// (sort-key, messageCid) as the total order, and paginates against q.Cursor.
// It does not probe an index first; the cost of a query grows with the
// tenant's entry count, whatever the filter.
func (s *MessageStore) Query(_ context.Context, tenant string, fs filter.Set, q store.QueryOptions) (store.QueryResult, error) {
	sh := s.shard(tenant)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	type row struct {
		cid     string
		msg     *message.Message
		sortKey filter.Scalar
		hasSort bool
	}

	rows := make([]row, 0, len(sh.cidList))
	for _, cid := range sh.cidList {
		e := sh.byCID[cid]
		if !fs.Matches(e.indices) {
			continue
		}
		r := row{cid: cid, msg: e.msg}
		if q.SortProperty != "" {
			if v, ok := e.indices[q.SortProperty]; ok {
				r.sortKey, r.hasSort = v, true
			} else {
				// Sorting on a date field omits records lacking it (e.g.
				// PublishedAscending omits unpublished records).
				continue
			}
		}
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool {
		if q.SortProperty != "" {
			c := rows[i].sortKey.Compare(rows[j].sortKey)
			if c != 0 {
				if q.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		// stable tie-break: (sort-key, messageCid) total order.
		if q.Ascending {
			return rows[i].cid < rows[j].cid
		}
		return rows[i].cid > rows[j].cid
	})

	start := 0
	if q.Cursor != nil {
		for i, r := range rows {
			if r.cid == q.Cursor.MessageCID {
				start = i + 1
				break
			}
		}
	}
	if start > len(rows) {
		start = len(rows)
	}
	rows = rows[start:]

	limit := q.Limit
	var next *store.Cursor
	if limit > 0 && len(rows) > limit {
		last := rows[limit-1]
		next = &store.Cursor{SortKey: filter.EncodeKey(last.sortKey), MessageCID: last.cid}
		rows = rows[:limit]
	}

	out := make([]*message.Message, len(rows))
	for i, r := range rows {
		out[i] = r.msg
	}
	return store.QueryResult{Messages: out, NextCursor: next}, nil
}
