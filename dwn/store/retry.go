package store

import (
	"context"
	"time"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
)

// RetryPolicy bounds the backoff applied to transient storage errors:
// recoverable conditions are retried a bounded number of times at the store
// layer with exponential backoff. A zero value disables retries (Attempts
// <= 1 behaves as a direct passthrough).
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy makes at most three attempts, waiting 50ms and then
// 100ms between them.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}

// IsTransient classifies errors worth retrying. The storage layer only
// retries its own durability failures, never a caller's bad input (a
// caller-visible error like ErrNotFound must never be classified as
// transient).
type IsTransient func(error) bool

// NeverTransient treats every error as permanent; useful for the in-memory
// reference store, which has no genuinely transient failure mode.
func NeverTransient(error) bool { return false }

func retry(ctx context.Context, p RetryPolicy, transient IsTransient, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil || !transient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// WithRetry wraps a MessageStore so that every operation is retried under p
// whenever transient(err) reports true, composing over the store the way
// massifs/logdircache.go layers a DirCache over a DirLister: a thin
// decorator that adds policy without changing the contract.
func WithRetry(ms MessageStore, p RetryPolicy, transient IsTransient) MessageStore {
	return &retryingMessageStore{inner: ms, policy: p, transient: transient}
}

type retryingMessageStore struct {
	inner     MessageStore
	policy    RetryPolicy
	transient IsTransient
}

func (r *retryingMessageStore) Put(ctx context.Context, tenant string, msg *message.Message, indices Indices) error {
	return retry(ctx, r.policy, r.transient, func() error {
		return r.inner.Put(ctx, tenant, msg, indices)
	})
}

func (r *retryingMessageStore) Get(ctx context.Context, tenant, messageCid string) (*message.Message, error) {
	var m *message.Message
	err := retry(ctx, r.policy, r.transient, func() error {
		var innerErr error
		m, innerErr = r.inner.Get(ctx, tenant, messageCid)
		return innerErr
	})
	return m, err
}

func (r *retryingMessageStore) Query(ctx context.Context, tenant string, fs filter.Set, q QueryOptions) (QueryResult, error) {
	var res QueryResult
	err := retry(ctx, r.policy, r.transient, func() error {
		var innerErr error
		res, innerErr = r.inner.Query(ctx, tenant, fs, q)
		return innerErr
	})
	return res, err
}

func (r *retryingMessageStore) Delete(ctx context.Context, tenant, messageCid string) error {
	return retry(ctx, r.policy, r.transient, func() error {
		return r.inner.Delete(ctx, tenant, messageCid)
	})
}

func (r *retryingMessageStore) Clear() {
	r.inner.Clear()
}
