package handler_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/dwntest"
	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/query"
	"github.com/datatrails/go-dwn/dwn/store"
)

func TestRecordsWriteInitialThenUpdateDominance(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	ctx := context.Background()

	w1, err := dwntest.NewWrite(alice, dwntest.WriteOptions{Schema: "https://example.com/note"}, []byte("hello"))
	require.NoError(t, err)

	reply, err := h.Engine.RecordsWrite(ctx, alice.DID, w1, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	require.Equal(t, dwnerr.StatusAccepted, reply.Status)

	time.Sleep(2 * time.Millisecond)
	w2, err := dwntest.UpdateWrite(alice, w1, dwntest.WriteOptions{}, []byte("updated"))
	require.NoError(t, err)

	reply, err = h.Engine.RecordsWrite(ctx, alice.DID, w2, bytes.NewReader([]byte("updated")))
	require.NoError(t, err)
	require.Equal(t, dwnerr.StatusAccepted, reply.Status)

	readMsg, err := dwntest.NewRead(alice, w1.RecordID)
	require.NoError(t, err)
	read, body, err := h.Engine.RecordsRead(ctx, alice.DID, readMsg)
	require.NoError(t, err)
	require.Len(t, read.Messages, 1)
	require.Equal(t, w2.Descriptor.DataCID, read.Messages[0].Descriptor.DataCID)
	require.NotNil(t, body)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "updated", string(data))

	// the superseded initial write's blob should have been pruned.
	_, err = h.Engine.Data.Get(ctx, alice.DID, w1.RecordID, w1.Descriptor.DataCID)
	require.Error(t, err)
}

func TestRecordsWriteRejectsImmutablePropertyChange(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	ctx := context.Background()

	w1, err := dwntest.NewWrite(alice, dwntest.WriteOptions{Schema: "https://example.com/note"}, []byte("hello"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, w1, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	w2, err := dwntest.UpdateWrite(alice, w1, dwntest.WriteOptions{Schema: "https://example.com/other"}, []byte("updated"))
	require.NoError(t, err)

	_, err = h.Engine.RecordsWrite(ctx, alice.DID, w2, bytes.NewReader([]byte("updated")))
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "ImmutableProperty", derr.Reason)
}

func TestRecordsWriteRejectsStaleWrite(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	ctx := context.Background()

	w1, err := dwntest.NewWrite(alice, dwntest.WriteOptions{}, []byte("hello"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, w1, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	w2, err := dwntest.UpdateWrite(alice, w1, dwntest.WriteOptions{}, []byte("second"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, w2, bytes.NewReader([]byte("second")))
	require.NoError(t, err)

	// w1 replayed again after w2 is already dominant: must be rejected.
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, w1, bytes.NewReader([]byte("hello")))
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "NotDominant", derr.Reason)
}

func TestRecordsDeleteTombstonesRecord(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	ctx := context.Background()

	w1, err := dwntest.NewWrite(alice, dwntest.WriteOptions{}, []byte("hello"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, w1, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	del, err := dwntest.NewDelete(alice, w1)
	require.NoError(t, err)
	reply, err := h.Engine.RecordsDelete(ctx, alice.DID, del)
	require.NoError(t, err)
	require.Equal(t, dwnerr.StatusAccepted, reply.Status)

	readMsg, err := dwntest.NewRead(alice, w1.RecordID)
	require.NoError(t, err)
	_, _, err = h.Engine.RecordsRead(ctx, alice.DID, readMsg)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, dwnerr.StatusNotFound, derr.Status)
}

func TestRecordsReadVisibilityForNonOwner(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	bob := h.Identity()
	ctx := context.Background()

	priv, err := dwntest.NewWrite(alice, dwntest.WriteOptions{}, []byte("secret"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, priv, bytes.NewReader([]byte("secret")))
	require.NoError(t, err)

	readMsg, err := dwntest.NewRead(bob, priv.RecordID)
	require.NoError(t, err)
	_, _, err = h.Engine.RecordsRead(ctx, alice.DID, readMsg)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, dwnerr.StatusUnauthorized, derr.Status)

	pub, err := dwntest.NewWrite(alice, dwntest.WriteOptions{Published: true}, []byte("public"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, pub, bytes.NewReader([]byte("public")))
	require.NoError(t, err)

	readMsg2, err := dwntest.NewRead(bob, pub.RecordID)
	require.NoError(t, err)
	reply, _, err := h.Engine.RecordsRead(ctx, alice.DID, readMsg2)
	require.NoError(t, err)
	require.Len(t, reply.Messages, 1)
}

func TestRecordsQueryFiltersByAuthorization(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	bob := h.Identity()
	ctx := context.Background()

	priv, err := dwntest.NewWrite(alice, dwntest.WriteOptions{Schema: "https://example.com/note"}, []byte("secret"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, priv, bytes.NewReader([]byte("secret")))
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	pub, err := dwntest.NewWrite(alice, dwntest.WriteOptions{Schema: "https://example.com/note", Published: true}, []byte("public"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, pub, bytes.NewReader([]byte("public")))
	require.NoError(t, err)

	q, err := dwntest.NewQuery(bob)
	require.NoError(t, err)
	reply, err := h.Engine.RecordsQuery(ctx, alice.DID, q, filter.Set{filter.Filter{
		"schema": filter.Equality(filter.String("https://example.com/note")),
	}}, store.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, reply.Messages, 1)
	require.Equal(t, pub.RecordID, reply.Messages[0].RecordID)

	q2, err := dwntest.NewQuery(alice)
	require.NoError(t, err)
	reply2, err := h.Engine.RecordsQuery(ctx, alice.DID, q2, filter.Set{filter.Filter{
		"schema": filter.Equality(filter.String("https://example.com/note")),
	}}, store.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, reply2.Messages, 2)
}

func TestRecordsSubscribeDeliversWrites(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := dwntest.NewSubscribe(alice)
	require.NoError(t, err)

	deliveries := make(chan string, 4)
	reply, err := h.Engine.RecordsSubscribe(ctx, alice.DID, sub, filter.Set{}, func(d query.Delivery) error {
		if d.Message != nil {
			deliveries <- d.Message.RecordID
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, reply.Subscription)
	defer reply.Subscription.Close()

	w1, err := dwntest.NewWrite(alice, dwntest.WriteOptions{}, []byte("hello"))
	require.NoError(t, err)
	_, err = h.Engine.RecordsWrite(ctx, alice.DID, w1, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	select {
	case recordID := <-deliveries:
		require.Equal(t, w1.RecordID, recordID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestProtocolsConfigureAndQueryVisibility(t *testing.T) {
	h := dwntest.New()
	alice := h.Identity()
	bob := h.Identity()
	ctx := context.Background()

	def := &message.ProtocolDefinition{
		Protocol:  "https://example.com/proto",
		Published: false,
		Structure: map[string]message.RuleSet{},
	}
	cfg, err := dwntest.NewConfigure(alice, def)
	require.NoError(t, err)
	reply, err := h.Engine.ProtocolsConfigure(ctx, alice.DID, cfg)
	require.NoError(t, err)
	require.Equal(t, dwnerr.StatusAccepted, reply.Status)

	q, err := dwntest.NewQuery(bob)
	require.NoError(t, err)
	visible, err := h.Engine.ProtocolsQuery(ctx, alice.DID, q, "https://example.com/proto")
	require.NoError(t, err)
	require.Empty(t, visible.Messages)

	ownQ, err := dwntest.NewQuery(alice)
	require.NoError(t, err)
	visible2, err := h.Engine.ProtocolsQuery(ctx, alice.DID, ownQ, "https://example.com/proto")
	require.NoError(t, err)
	require.Len(t, visible2.Messages, 1)
}
