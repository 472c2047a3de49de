package poorlock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheClient is the subset of *memcache.Client used by MemcacheStore.
type MemcacheClient interface {
	Add(item *memcache.Item) error
	Get(key string) (*memcache.Item, error)
	CompareAndSwap(item *memcache.Item) error
	Delete(key string) error
}

// MemcacheStore stores the lock record as a JSON object. Add only stores
// absent keys, and the second claim goes through gets/cas.
type MemcacheStore struct {
	client MemcacheClient
	opts   storeOptions
}

var (
	_ LockStore     = (*MemcacheStore)(nil)
	_ SecondClaimer = (*MemcacheStore)(nil)
)

func NewMemcacheStore(client MemcacheClient, opts ...StoreOption) *MemcacheStore {
	return &MemcacheStore{
		client: client,
		opts:   newStoreOptions(opts),
	}
}

func (s *MemcacheStore) TryAcquire(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return accessError(opAcquire, key, err)
	}
	value, err := s.encode(key, StatusFirst)
	if err != nil {
		return accessError(opAcquire, key, err)
	}

	err = s.client.Add(&memcache.Item{Key: s.itemKey(key), Value: value})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, memcache.ErrNotStored):
		return alreadyLocked(opAcquire, key)
	default:
		s.opts.logger.Error("memcache add failed", "key", key.String(), "err", err)
		return accessError(opAcquire, key, err)
	}
}

func (s *MemcacheStore) TryAcquireSecond(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return accessError(opAcquireSecond, key, err)
	}
	item, err := s.client.Get(s.itemKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return alreadyLocked(opAcquireSecond, key)
	}
	if err != nil {
		s.opts.logger.Error("memcache get failed", "key", key.String(), "err", err)
		return accessError(opAcquireSecond, key, err)
	}

	status, err := s.status(item.Value)
	if err != nil {
		return accessError(opAcquireSecond, key, err)
	}
	if status != StatusFirst {
		return alreadyLocked(opAcquireSecond, key)
	}

	if item.Value, err = s.encode(key, StatusSecond); err != nil {
		return accessError(opAcquireSecond, key, err)
	}
	err = s.client.CompareAndSwap(item)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, memcache.ErrCASConflict), errors.Is(err, memcache.ErrNotStored):
		return alreadyLocked(opAcquireSecond, key)
	default:
		s.opts.logger.Error("memcache cas failed", "key", key.String(), "err", err)
		return accessError(opAcquireSecond, key, err)
	}
}

func (s *MemcacheStore) Release(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return accessError(opRelease, key, err)
	}
	err := s.client.Delete(s.itemKey(key))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, memcache.ErrCacheMiss):
		return alreadyUnlocked(key)
	default:
		s.opts.logger.Error("memcache delete failed", "key", key.String(), "err", err)
		return accessError(opRelease, key, err)
	}
}

func (s *MemcacheStore) itemKey(key Key) string {
	return s.opts.prefix + key.String()
}

func (s *MemcacheStore) encode(key Key, status Status) ([]byte, error) {
	r := newRecord(key, status, s.opts.now())
	return json.Marshal(map[string]any{
		s.opts.schema.IDField:       r.ID,
		s.opts.schema.StatusField:   int64(r.Status),
		s.opts.schema.LockedAtField: r.LockedAt,
	})
}

func (s *MemcacheStore) status(value []byte) (Status, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return 0, fmt.Errorf("decode lock record: %w", err)
	}
	raw, ok := fields[s.opts.schema.StatusField]
	if !ok {
		return 0, nil
	}
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("decode lock status: unexpected %T", raw)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("decode lock status: %w", err)
	}
	return Status(v), nil
}
