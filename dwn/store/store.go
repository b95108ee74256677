// Package store defines the three storage contracts
// (MessageStore, DataStore, EventLog) and the pagination cursor shared by
// their query operations. It mirrors the shape of the teacher's
// massifs/storageinterface.go (small, composable reader/writer/committer
// interfaces) and massifs/storage.PathProvider (an interface the concrete
// backend satisfies; the core never imports a concrete backend directly).
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
)

// Indices is the open string -> scalar mapping materialized at Put time:
// every descriptor field plus the synthetic keys author, recordId,
// entryId, attester?, isLatestBaseState, contextId?.
type Indices map[string]filter.Scalar

// ErrNotFound is returned by Get when no message exists for the given CID,
// and by DataStore.Get when no blob exists for the given dataCid.
var ErrNotFound = errors.New("store: not found")

// MessageStore is the per-tenant indexed message store.
type MessageStore interface {
	Put(ctx context.Context, tenant string, msg *message.Message, indices Indices) error
	Get(ctx context.Context, tenant, messageCid string) (*message.Message, error)
	Query(ctx context.Context, tenant string, fs filter.Set, q QueryOptions) (QueryResult, error)
	Delete(ctx context.Context, tenant, messageCid string) error
	Clear()
}

// QueryOptions configures a MessageStore.Query call.
type QueryOptions struct {
	SortProperty string // e.g. "dateCreated" or "datePublished"
	Ascending    bool
	Cursor       *Cursor
	Limit        int // 0 means unbounded
}

// QueryResult is one page of a MessageStore.Query call.
type QueryResult struct {
	Messages   []*message.Message
	NextCursor *Cursor // nil when there is no further page
}

// Cursor is the opaque, stable pagination token: stable
// across ties by (sort-key, messageCid).
type Cursor struct {
	SortKey    string `json:"k"`
	MessageCID string `json:"c"`
}

// Encode renders c as the opaque string callers pass back on the next
// query.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// ErrMalformedCursor is returned by DecodeCursor for an unparsable token.
var ErrMalformedCursor = errors.New("store: malformed cursor")

// DecodeCursor parses a token produced by Cursor.Encode.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrMalformedCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, ErrMalformedCursor
	}
	return &c, nil
}

// DataStore is the content-addressed blob store.
type DataStore interface {
	Put(ctx context.Context, tenant, recordID, dataCID string, r io.Reader) (writtenCID string, size int64, err error)
	Get(ctx context.Context, tenant, recordID, dataCID string) (io.ReadCloser, error)
	Delete(ctx context.Context, tenant, recordID, dataCID string) error
}

// Event is one EventLog entry: an append-order watermark paired with the
// messageCid it names.
type Event struct {
	Watermark  string
	MessageCID string
}

// EventLog is the append-only per-tenant tail.
type EventLog interface {
	Append(ctx context.Context, tenant, messageCid string) (watermark string, err error)
	QueryFrom(ctx context.Context, tenant string, cursor string, fs filter.Set) ([]Event, string, error)
}

// MaxDataSizeAllowedToBeEncoded is the inlining threshold for dataSize. No
// code in this module reads it: RecordsWrite stores every supplied payload
// as a DataStore blob, whatever its size, and never fills encodedData.
const MaxDataSizeAllowedToBeEncoded = 4000
