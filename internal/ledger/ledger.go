// Package ledger keeps the durable set of scheduled item ids that were
// already dispatched. An id present in the ledger is never sent again.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"herald/internal/storage"
)

// ErrPersist is returned by PersistWithRetry once every attempt failed.
var ErrPersist = errors.New("ledger persist failed")

// Backend is the subset of storage.Store the ledger needs.
type Backend interface {
	LoadCompleted(ctx context.Context) ([]uint32, error)
	SaveCompleted(ctx context.Context, ids []uint32) error
}

var _ Backend = (storage.Store)(nil)

// Ledger is an in-memory id set bound to a backend.
type Ledger struct {
	backend Backend

	mu  sync.Mutex
	ids map[uint32]struct{}
}

// Load reads the current set from the backend.
func Load(ctx context.Context, b Backend) (*Ledger, error) {
	ids, err := b.LoadCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	l := &Ledger{backend: b, ids: make(map[uint32]struct{}, len(ids))}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	return l, nil
}

func (l *Ledger) Has(id uint32) bool {
	l.mu.Lock()
	_, ok := l.ids[id]
	l.mu.Unlock()
	return ok
}

// Add records id in memory only; call Persist to make it durable.
func (l *Ledger) Add(id uint32) {
	l.mu.Lock()
	l.ids[id] = struct{}{}
	l.mu.Unlock()
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// IDs returns the ids in ascending order.
func (l *Ledger) IDs() []uint32 {
	l.mu.Lock()
	out := make([]uint32, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Persist atomically replaces the backend content with the current set.
func (l *Ledger) Persist(ctx context.Context) error {
	return l.backend.SaveCompleted(ctx, l.IDs())
}

// RetryPolicy bounds PersistWithRetry.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	// OnFailure is called after each failed attempt (1-based).
	OnFailure func(attempt int, err error)
}

// PersistWithRetry calls Persist up to p.Attempts times with a fixed backoff
// between attempts. The returned error wraps ErrPersist and the last cause.
func (l *Ledger) PersistWithRetry(ctx context.Context, p RetryPolicy) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for i := 1; i <= attempts; i++ {
		last = l.Persist(ctx)
		if last == nil {
			return nil
		}
		if p.OnFailure != nil {
			p.OnFailure(i, last)
		}
		if i == attempts {
			break
		}
		t := time.NewTimer(p.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %w", ErrPersist, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrPersist, attempts, last)
}
