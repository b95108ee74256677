package query

import (
	"context"
	"testing"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/store"
	"github.com/datatrails/go-dwn/dwn/store/memstore"
)

func newWrite(ts, schema string) *message.Message {
	return &message.Message{
		Descriptor: message.Descriptor{
			Interface:        message.InterfaceRecords,
			Method:           message.MethodWrite,
			MessageTimestamp: ts,
			DateCreated:      ts,
			Schema:           schema,
		},
	}
}

func TestEngineQueryForwardsToStore(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	m1 := newWrite("2023-01-01T00:00:00.000000Z", "s1")
	m2 := newWrite("2023-01-02T00:00:00.000000Z", "s2")
	require.NoError(t, ms.Put(ctx, "t", m1, store.Indices{"schema": filter.String("s1"), "dateCreated": filter.String(m1.Descriptor.DateCreated)}))
	require.NoError(t, ms.Put(ctx, "t", m2, store.Indices{"schema": filter.String("s2"), "dateCreated": filter.String(m2.Descriptor.DateCreated)}))

	e, _ := New(logger.Sugar, ms, Config{})
	res, err := e.Query(ctx, "t", filter.Set{filter.Filter{"schema": filter.Equality(filter.String("s2"))}}, store.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	require.Equal(t, "s2", res.Messages[0].Descriptor.Schema)
}

func TestEngineSubscribeObservesPublishedEvents(t *testing.T) {
	ms := memstore.New()
	e, bus := New(logger.Sugar, ms, Config{})

	got := make(chan Delivery, 1)
	sub, err := e.Subscribe(context.Background(), "t", filter.Set{filter.Filter{"interface": filter.Equality(filter.String("Records"))}}, func(d Delivery) error {
		got <- d
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	m := newWrite("2023-01-01T00:00:00.000000Z", "s1")
	bus.Publish("t", store.Event{MessageCID: "cid1"}, m, store.Indices{"interface": filter.String("Records")})

	select {
	case d := <-got:
		require.Equal(t, "cid1", d.Event.MessageCID)
		require.Same(t, m, d.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
