package validate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/validate"
	"github.com/datatrails/go-dwn/internal/didkey"
	"github.com/datatrails/go-dwn/internal/jws"
)

func newSigned(t *testing.T, reg *didkey.Registry, id *didkey.Identity, d message.Descriptor, recordID, contextID string) *message.Message {
	t.Helper()
	descCID, err := (&message.Message{Descriptor: d}).DescriptorCID()
	require.NoError(t, err)
	payload := message.SignaturePayload{DescriptorCID: descCID, RecordID: recordID, ContextID: contextID}
	encoded, err := payload.Encode()
	require.NoError(t, err)
	g, err := jws.Sign(encoded, id.Signer())
	require.NoError(t, err)
	return &message.Message{Descriptor: d, Authorization: message.Authorization{Signature: *g}, RecordID: recordID, ContextID: contextID}
}

func writeDescriptor(ts string) message.Descriptor {
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodWrite,
		MessageTimestamp: ts,
		DateCreated:      ts,
		Schema:           "https://example.com/note",
		DataCID:          "bafkreitest",
		DataSize:         5,
		DataSizeSet:      true,
	}
	return d
}

func TestValidateAcceptsGenuineInitialWrite(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	recordID, err := message.ComputeRecordID(&d, alice.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, alice, d, recordID, "")

	author, owner, err := v.Validate(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, alice.DID, author)
	require.Empty(t, owner)
}

func TestValidateRejectsUnresolvableSigner(t *testing.T) {
	reg := didkey.NewRegistry()
	other := didkey.NewRegistry()
	ghost, err := other.NewIdentity() // registered with a resolver the validator never consults
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	recordID, err := message.ComputeRecordID(&d, ghost.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, ghost, d, recordID, "")

	_, _, err = v.Validate(context.Background(), m)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, dwnerr.StatusUnauthorized, derr.Status)
}

func TestValidateRejectsTamperedDescriptor(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	recordID, err := message.ComputeRecordID(&d, alice.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, alice, d, recordID, "")

	m.Descriptor.Schema = "https://example.com/tampered"

	_, _, err = v.Validate(context.Background(), m)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "DescriptorCidMismatch", derr.Reason)
}

func TestValidateRejectsRecordIdMismatch(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	recordID, err := message.ComputeRecordID(&d, alice.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, alice, d, recordID, "")

	// the signature payload still names recordID; swapping the message's
	// own recordId after signing must be caught rather than silently
	// trusted.
	m.RecordID = "a-different-record-id"

	_, _, err = v.Validate(context.Background(), m)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "RecordIdMismatch", derr.Reason)
}

func TestValidateRejectsInitialWriteTimestampMismatch(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	d.DateCreated = message.FormatTimestamp(time.Now().Add(-time.Hour))
	recordID, err := message.ComputeRecordID(&d, alice.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, alice, d, recordID, "")

	_, _, err = v.Validate(context.Background(), m)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "InitialWriteTimestampMismatch", derr.Reason)
}

func TestValidateRejectsMissingData(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := message.Descriptor{
		Interface:        message.InterfaceRecords,
		Method:           message.MethodWrite,
		MessageTimestamp: ts,
		DateCreated:      ts,
	}
	m := newSigned(t, reg, alice, d, "whatever", "")

	_, _, err = v.Validate(context.Background(), m)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "MissingData", derr.Reason)
}

func TestValidateRejectsPublishedWithoutDatePublished(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	published := true
	d.Published = &published
	recordID, err := message.ComputeRecordID(&d, alice.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, alice, d, recordID, "")

	_, _, err = v.Validate(context.Background(), m)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "PublishedWithoutDatePublished", derr.Reason)
}

func TestValidateRejectsNonNormalizedProtocolURL(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	d.Protocol = "https://Example.com/proto/"
	recordID, err := message.ComputeRecordID(&d, alice.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, alice, d, recordID, recordID)

	_, _, err = v.Validate(context.Background(), m)
	require.Error(t, err)
	derr, ok := dwnerr.As(err)
	require.True(t, ok)
	require.Equal(t, "ProtocolUrlNotNormalized", derr.Reason)
}

func TestValidateReturnsOwnerWhenOwnerSignaturePresent(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)
	tenant, err := reg.NewIdentity()
	require.NoError(t, err)
	v := validate.New(reg.Resolve)

	ts := message.FormatTimestamp(time.Now())
	d := writeDescriptor(ts)
	recordID, err := message.ComputeRecordID(&d, alice.DID)
	require.NoError(t, err)
	m := newSigned(t, reg, alice, d, recordID, "")

	descCID, err := m.DescriptorCID()
	require.NoError(t, err)
	ownerPayload := message.SignaturePayload{DescriptorCID: descCID}
	encoded, err := ownerPayload.Encode()
	require.NoError(t, err)
	ownerSig, err := jws.Sign(encoded, tenant.Signer())
	require.NoError(t, err)
	m.Authorization.OwnerSignature = ownerSig

	author, owner, err := v.Validate(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, alice.DID, author)
	require.Equal(t, tenant.DID, owner)
}
