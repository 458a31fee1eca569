package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisFactory(t *testing.T, opts Options) (*miniredis.Miniredis, *RedisFactory) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisFactory(client, opts)
}

func TestRedisLock_AcquireSetsOwnerAndTTL(t *testing.T) {
	mr, f := newRedisFactory(t, Options{TTL: 5 * time.Second})
	ctx := context.Background()
	key := UserKey(7)

	m := f.NewMutex(key)
	require.NoError(t, m.Lock(ctx))

	owner, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, m.(*DistributedLock).value, owner)
	assert.Equal(t, 5*time.Second, mr.TTL(key))

	require.NoError(t, m.Unlock(ctx))
	assert.False(t, mr.Exists(key))
}

func TestRedisLock_Contention(t *testing.T) {
	_, f := newRedisFactory(t, Options{RetryInterval: 5 * time.Millisecond, MaxRetries: 3})
	ctx := context.Background()
	key := TopUpKey("TOPUP-1")

	holder := f.NewMutex(key)
	require.NoError(t, holder.Lock(ctx))

	waiter := f.NewMutex(key)
	assert.ErrorIs(t, waiter.Lock(ctx), ErrLockFailed)

	// 其他 key 不受影响
	require.NoError(t, f.NewMutex(TopUpKey("TOPUP-2")).Lock(ctx))

	require.NoError(t, holder.Unlock(ctx))
	require.NoError(t, waiter.Lock(ctx))
}

func TestRedisLock_UnlockOnlyByOwner(t *testing.T) {
	mr, f := newRedisFactory(t, Options{TTL: time.Second, RetryInterval: 5 * time.Millisecond, MaxRetries: 3})
	ctx := context.Background()
	key := UserKey(1)

	first := f.NewMutex(key)
	second := f.NewMutex(key)
	require.NoError(t, first.Lock(ctx))

	require.NoError(t, second.Unlock(ctx))
	assert.True(t, mr.Exists(key), "non-owner must not release the lock")

	// first 的锁过期后被 second 获得，first 迟到的 Unlock 不能删掉 second 的锁
	mr.FastForward(2 * time.Second)
	require.NoError(t, second.Lock(ctx))
	require.NoError(t, first.Unlock(ctx))

	owner, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, second.(*DistributedLock).value, owner)
}

func TestRedisLock_ContextCanceled(t *testing.T) {
	_, f := newRedisFactory(t, Options{RetryInterval: 20 * time.Millisecond, MaxRetries: 1000})
	key := UserKey(3)
	require.NoError(t, f.NewMutex(key).Lock(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	assert.ErrorIs(t, f.NewMutex(key).Lock(ctx), context.Canceled)
}
