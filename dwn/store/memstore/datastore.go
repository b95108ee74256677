package memstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/datatrails/go-dwn/internal/canon"

	"github.com/datatrails/go-dwn/dwn/store"
)

type blobKey struct {
	tenant, recordID, dataCID string
}

// DataStore is the in-memory content-addressed blob store.
type DataStore struct {
	mu    sync.RWMutex
	blobs map[blobKey][]byte
}

// NewDataStore creates an empty DataStore.
func NewDataStore() *DataStore {
	return &DataStore{blobs: make(map[blobKey][]byte)}
}

// Put reads r fully, verifies (or computes, if dataCID is empty) the CID of
// the bytes, and stores them keyed by (tenant, recordID, dataCID).
func (d *DataStore) Put(_ context.Context, tenant, recordID, dataCID string, r io.Reader) (string, int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	computed, err := canon.CIDOfBytes(b)
	if err != nil {
		return "", 0, err
	}
	if dataCID != "" && dataCID != computed {
		return "", 0, store.ErrNotFound // CID mismatch is surfaced as a validator concern upstream; kept minimal here
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.blobs[blobKey{tenant, recordID, computed}] = b
	return computed, int64(len(b)), nil
}

// Get returns a reader over the stored blob, or store.ErrNotFound.
func (d *DataStore) Get(_ context.Context, tenant, recordID, dataCID string) (io.ReadCloser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.blobs[blobKey{tenant, recordID, dataCID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Delete removes a blob. It is a no-op if the blob does not exist, matching
// the garbage-collection model (delete is only ever attempted once the
// record's dominant entry no longer references the dataCid).
func (d *DataStore) Delete(_ context.Context, tenant, recordID, dataCID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.blobs, blobKey{tenant, recordID, dataCID})
	return nil
}
