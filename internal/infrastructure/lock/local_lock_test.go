package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFactory_MutualExclusion(t *testing.T) {
	f := NewLocalFactory()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := f.NewMutex(UserKey(1))
			if !assert.NoError(t, m.Lock(ctx)) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, m.Unlock(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, f.slots)
}

func TestLocalFactory_DifferentKeysDoNotBlock(t *testing.T) {
	f := NewLocalFactory()
	ctx := context.Background()

	a := f.NewMutex(UserKey(1))
	b := f.NewMutex(UserKey(2))
	require.NoError(t, a.Lock(ctx))
	require.NoError(t, b.Lock(ctx))
	require.NoError(t, a.Unlock(ctx))
	require.NoError(t, b.Unlock(ctx))
}

func TestLocalFactory_ContextCancel(t *testing.T) {
	f := NewLocalFactory()
	holder := f.NewMutex(TopUpKey("TOPUP-1"))
	require.NoError(t, holder.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.NewMutex(TopUpKey("TOPUP-1")).Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, holder.Unlock(context.Background()))
	assert.Empty(t, f.slots)
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 10*time.Second, o.TTL)
	assert.Equal(t, 50*time.Millisecond, o.RetryInterval)
	assert.Equal(t, 100, o.MaxRetries)
}
