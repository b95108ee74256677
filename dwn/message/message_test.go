package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-dwn/internal/didkey"
	"github.com/datatrails/go-dwn/internal/jws"
)

func TestFormatParseTimestampRoundTrips(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 123000, time.UTC)
	s := FormatTimestamp(now)
	parsed, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))
}

func TestParseTimestampRejectsNonUTCOffset(t *testing.T) {
	_, err := ParseTimestamp("2026-07-30T12:00:00.000000+00:00")
	require.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestCompareTimestampsOrdersChronologically(t *testing.T) {
	earlier := FormatTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := FormatTimestamp(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, -1, CompareTimestamps(earlier, later))
	assert.Equal(t, 1, CompareTimestamps(later, earlier))
	assert.Equal(t, 0, CompareTimestamps(earlier, earlier))
}

func TestNormalizeProtocolURLLowercasesHostAndTrimsSlash(t *testing.T) {
	got, err := NormalizeProtocolURL("https://Example.COM/proto/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/proto", got)
}

func TestIsNormalizedProtocolURLRejectsMixedCaseHost(t *testing.T) {
	assert.False(t, IsNormalizedProtocolURL("https://Example.com/proto"))
	assert.True(t, IsNormalizedProtocolURL("https://example.com/proto"))
}

func TestNormalizeSchemaURLRejectsEmpty(t *testing.T) {
	_, err := NormalizeSchemaURL("   ")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestComputeRecordIDIsDeterministicAndAuthorBound(t *testing.T) {
	d := Descriptor{
		Interface:        InterfaceRecords,
		Method:           MethodWrite,
		MessageTimestamp: "2026-07-30T12:00:00.000000Z",
		DateCreated:      "2026-07-30T12:00:00.000000Z",
		Schema:           "https://example.com/note",
	}
	id1, err := ComputeRecordID(&d, "did:key:alice")
	require.NoError(t, err)
	id2, err := ComputeRecordID(&d, "did:key:alice")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := ComputeRecordID(&d, "did:key:bob")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestDescriptorCIDChangesWithAnyField(t *testing.T) {
	d := Descriptor{
		Interface:        InterfaceRecords,
		Method:           MethodWrite,
		MessageTimestamp: "2026-07-30T12:00:00.000000Z",
		DateCreated:      "2026-07-30T12:00:00.000000Z",
		Schema:           "https://example.com/note",
	}
	m1 := &Message{Descriptor: d}
	c1, err := m1.DescriptorCID()
	require.NoError(t, err)

	d.Schema = "https://example.com/other"
	m2 := &Message{Descriptor: d}
	c2, err := m2.DescriptorCID()
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestSignaturePayloadEncodeDecodeRoundTrips(t *testing.T) {
	reg := didkey.NewRegistry()
	alice, err := reg.NewIdentity()
	require.NoError(t, err)

	p := SignaturePayload{
		DescriptorCID:      "bafkreitest",
		RecordID:           "rec-1",
		ContextID:          "ctx-1",
		PermissionsGrantID: "grant-1",
	}
	encoded, err := p.Encode()
	require.NoError(t, err)

	g, err := jws.Sign(encoded, alice.Signer())
	require.NoError(t, err)

	decoded, err := DecodeSignaturePayload(g)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}
