package poorlock

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return c
}

func randomKey(t *testing.T) Key {
	t.Helper()
	return MustKey("test-" + uuid.NewString())
}

// countingStore counts the calls that reach the wrapped store.
type countingStore struct {
	LockStore
	acquires atomic.Int64
	releases atomic.Int64
}

func (s *countingStore) TryAcquire(ctx context.Context, key Key) error {
	s.acquires.Add(1)
	return s.LockStore.TryAcquire(ctx, key)
}

func (s *countingStore) Release(ctx context.Context, key Key) error {
	s.releases.Add(1)
	return s.LockStore.Release(ctx, key)
}

// failingStore returns an access error from the operations that are switched on.
type failingStore struct {
	LockStore
	failAcquire bool
	failRelease bool
}

var errBackend = errors.New("connection refused")

func (s *failingStore) TryAcquire(ctx context.Context, key Key) error {
	if s.failAcquire {
		return accessError(opAcquire, key, errBackend)
	}
	return s.LockStore.TryAcquire(ctx, key)
}

func (s *failingStore) Release(ctx context.Context, key Key) error {
	if s.failRelease {
		return accessError(opRelease, key, errBackend)
	}
	return s.LockStore.Release(ctx, key)
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
