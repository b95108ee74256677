package memstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/store"
)

func newWrite(t *testing.T, ts string, schema string) *message.Message {
	t.Helper()
	m := &message.Message{
		Descriptor: message.Descriptor{
			Interface:        message.InterfaceRecords,
			Method:           message.MethodWrite,
			MessageTimestamp: ts,
			DateCreated:      ts,
			Schema:           schema,
			DataFormat:       "application/json",
		},
	}
	return m
}

func TestMessageStorePutGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	ms := New()
	m := newWrite(t, "2023-01-01T00:00:00.000000Z", "s1")
	cid, err := m.MessageCID()
	require.NoError(t, err)

	require.NoError(t, ms.Put(ctx, "tenant-a", m, store.Indices{"schema": filter.String("s1")}))

	got, err := ms.Get(ctx, "tenant-a", cid)
	require.NoError(t, err)
	assert.Equal(t, m.Descriptor.Schema, got.Descriptor.Schema)
}

func TestMessageStoreGetMissingReturnsErrNotFound(t *testing.T) {
	ms := New()
	_, err := ms.Get(context.Background(), "tenant-a", "bogus")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessageStoreQueryFiltersByIndex(t *testing.T) {
	ctx := context.Background()
	ms := New()
	m1 := newWrite(t, "2023-01-01T00:00:00.000000Z", "s1")
	m2 := newWrite(t, "2023-01-02T00:00:00.000000Z", "s2")
	require.NoError(t, ms.Put(ctx, "t", m1, store.Indices{"schema": filter.String("s1"), "dateCreated": filter.String(m1.Descriptor.DateCreated)}))
	require.NoError(t, ms.Put(ctx, "t", m2, store.Indices{"schema": filter.String("s2"), "dateCreated": filter.String(m2.Descriptor.DateCreated)}))

	res, err := ms.Query(ctx, "t", filter.Set{filter.Filter{"schema": filter.Equality(filter.String("s2"))}}, store.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "s2", res.Messages[0].Descriptor.Schema)
}

func TestMessageStoreQueryPaginationIsStableAndComplete(t *testing.T) {
	ctx := context.Background()
	ms := New()
	for i := 0; i < 7; i++ {
		m := newWrite(t, "2023-01-01T00:00:00.000000Z", fmt.Sprintf("s%d", i))
		require.NoError(t, ms.Put(ctx, "t", m, store.Indices{"dateCreated": filter.String(m.Descriptor.DateCreated)}))
	}

	seen := map[string]bool{}
	var cursor *store.Cursor
	for {
		res, err := ms.Query(ctx, "t", filter.Set{}, store.QueryOptions{SortProperty: "dateCreated", Ascending: true, Cursor: cursor, Limit: 3})
		require.NoError(t, err)
		for _, m := range res.Messages {
			cid, err := m.MessageCID()
			require.NoError(t, err)
			assert.False(t, seen[cid], "duplicate message across pages")
			seen[cid] = true
		}
		if res.NextCursor == nil {
			break
		}
		cursor = res.NextCursor
	}
	assert.Len(t, seen, 7)
}

func TestMessageStoreClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	ms := New()
	m := newWrite(t, "2023-01-01T00:00:00.000000Z", "s")
	require.NoError(t, ms.Put(ctx, "t", m, store.Indices{}))
	ms.Clear()
	res, err := ms.Query(ctx, "t", filter.Set{}, store.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
}
