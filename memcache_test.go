package poorlock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemcache emulates add/gets/cas/delete. CAS tokens are tracked per item
// handed out by Get since the real cas id is unexported.
type fakeMemcache struct {
	mu      sync.Mutex
	items   map[string][]byte
	version map[string]uint64
	issued  map[*memcache.Item]uint64
	err     error
}

func newFakeMemcache() *fakeMemcache {
	return &fakeMemcache{
		items:   map[string][]byte{},
		version: map[string]uint64{},
		issued:  map[*memcache.Item]uint64{},
	}
}

func (f *fakeMemcache) Add(item *memcache.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.items[item.Key]; ok {
		return memcache.ErrNotStored
	}
	f.store(item)
	return nil
}

func (f *fakeMemcache) Get(key string) (*memcache.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.items[key]
	if !ok {
		return nil, memcache.ErrCacheMiss
	}
	item := &memcache.Item{Key: key, Value: append([]byte(nil), v...)}
	f.issued[item] = f.version[key]
	return item, nil
}

func (f *fakeMemcache) CompareAndSwap(item *memcache.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.items[item.Key]; !ok {
		return memcache.ErrNotStored
	}
	if v, ok := f.issued[item]; !ok || v != f.version[item.Key] {
		return memcache.ErrCASConflict
	}
	f.store(item)
	return nil
}

func (f *fakeMemcache) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.items[key]; !ok {
		return memcache.ErrCacheMiss
	}
	delete(f.items, key)
	f.version[key]++
	return nil
}

func (f *fakeMemcache) store(item *memcache.Item) {
	f.items[item.Key] = append([]byte(nil), item.Value...)
	f.version[item.Key]++
}

func (f *fakeMemcache) record(t *testing.T, key string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var m map[string]any
	require.NoError(t, json.Unmarshal(f.items[key], &m))
	return m
}

func TestMemcacheStoreContract(t *testing.T) {
	testStoreContract(t, NewMemcacheStore(newFakeMemcache()))
}

func TestMemcacheStoreRecord(t *testing.T) {
	fake := newFakeMemcache()
	store := NewMemcacheStore(fake, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	ctx := context.Background()

	require.NoError(t, store.TryAcquire(ctx, MustKey("job")))
	rec := fake.record(t, "poorlock:job")
	assert.Equal(t, "job", rec["id"])
	assert.EqualValues(t, 1, rec["status"])
	assert.EqualValues(t, 1700000000, rec["locked_at"])

	require.NoError(t, store.TryAcquireSecond(ctx, MustKey("job")))
	assert.EqualValues(t, 2, fake.record(t, "poorlock:job")["status"])
}

func TestMemcacheStoreCASConflict(t *testing.T) {
	fake := newFakeMemcache()
	store := NewMemcacheStore(fake)
	ctx := context.Background()
	key := MustKey("job")
	require.NoError(t, store.TryAcquire(ctx, key))

	// another client rewrites the record between our gets and cas
	racing := &racingMemcache{fakeMemcache: fake, onGet: func() {
		require.NoError(t, fake.Delete("poorlock:job"))
		require.NoError(t, store.TryAcquire(ctx, key))
	}}
	err := NewMemcacheStore(racing).TryAcquireSecond(ctx, key)
	assert.True(t, IsAlreadyLocked(err), "got %v", err)
}

type racingMemcache struct {
	*fakeMemcache
	onGet func()
}

func (r *racingMemcache) Get(key string) (*memcache.Item, error) {
	item, err := r.fakeMemcache.Get(key)
	r.onGet()
	return item, err
}

func TestMemcacheStoreAccessError(t *testing.T) {
	fake := newFakeMemcache()
	fake.err = errors.New("dial tcp 127.0.0.1:11211: connect: connection refused")
	store := NewMemcacheStore(fake)
	ctx := context.Background()

	assert.True(t, IsAccess(store.TryAcquire(ctx, MustKey("a"))))
	assert.True(t, IsAccess(store.TryAcquireSecond(ctx, MustKey("a"))))
	assert.True(t, IsAccess(store.Release(ctx, MustKey("a"))))
}

func TestMemcacheStoreMalformedRecord(t *testing.T) {
	fake := newFakeMemcache()
	require.NoError(t, fake.Add(&memcache.Item{Key: "poorlock:job", Value: []byte("locked")}))

	err := NewMemcacheStore(fake).TryAcquireSecond(context.Background(), MustKey("job"))
	assert.True(t, IsAccess(err), "got %v", err)
}
