package poorlock

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// The lock record is a hash at prefix+key. Both acquisition paths check and
// write the hash in one script so the precondition and the write are atomic.
var (
	acquireScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[3]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6])
return 1
`)

	acquireSecondScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[3]) ~= ARGV[7] then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6])
return 1
`)
)

type RedisStore struct {
	client redis.UniversalClient
	opts   storeOptions
}

var (
	_ LockStore     = (*RedisStore)(nil)
	_ SecondClaimer = (*RedisStore)(nil)
)

func NewRedisStore(client redis.UniversalClient, opts ...StoreOption) *RedisStore {
	return &RedisStore{
		client: client,
		opts:   newStoreOptions(opts),
	}
}

func (s *RedisStore) TryAcquire(ctx context.Context, key Key) error {
	return s.run(ctx, opAcquire, key, acquireScript, StatusFirst)
}

func (s *RedisStore) TryAcquireSecond(ctx context.Context, key Key) error {
	return s.run(ctx, opAcquireSecond, key, acquireSecondScript, StatusSecond,
		StatusFirst.String())
}

func (s *RedisStore) Release(ctx context.Context, key Key) error {
	n, err := s.client.Del(ctx, s.redisKey(key)).Result()
	if err != nil {
		s.opts.logger.Error("redis del failed", "key", key.String(), "err", err)
		return accessError(opRelease, key, err)
	}
	if n == 0 {
		return alreadyUnlocked(key)
	}
	return nil
}

func (s *RedisStore) run(ctx context.Context, op string, key Key, script *redis.Script, status Status, extra ...interface{}) error {
	r := newRecord(key, status, s.opts.now())
	args := []interface{}{
		s.opts.schema.IDField, r.ID,
		s.opts.schema.StatusField, r.Status.String(),
		s.opts.schema.LockedAtField, strconv.FormatInt(r.LockedAt, 10),
	}
	args = append(args, extra...)

	ok, err := script.Run(ctx, s.client, []string{s.redisKey(key)}, args...).Int()
	if err != nil {
		s.opts.logger.Error("redis script failed", "op", op, "key", key.String(), "err", err)
		return accessError(op, key, err)
	}
	if ok != 1 {
		return alreadyLocked(op, key)
	}
	return nil
}

func (s *RedisStore) redisKey(key Key) string {
	return s.opts.prefix + key.String()
}
