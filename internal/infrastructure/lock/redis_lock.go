package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// 只有持有者才能删除 key，避免锁过期后误删别人的锁
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 基于 SET NX EX 的 Redis 锁
type DistributedLock struct {
	client     redis.UniversalClient
	key        string
	value      string // 持有者标识
	expiration time.Duration
	opts       Options
}

func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context) error {
	for i := 0; i < l.opts.MaxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.RetryInterval):
		}
	}
	return ErrLockFailed
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

type RedisFactory struct {
	client redis.UniversalClient
	opts   Options
}

func NewRedisFactory(client redis.UniversalClient, opts Options) *RedisFactory {
	return &RedisFactory{client: client, opts: opts.withDefaults()}
}

func (f *RedisFactory) NewMutex(key string) Mutex {
	return &DistributedLock{
		client:     f.client,
		key:        key,
		value:      uuid.NewString(),
		expiration: f.opts.TTL,
		opts:       f.opts,
	}
}
