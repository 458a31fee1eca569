package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLockFailed = errors.New("获取锁失败")
)

// Mutex 一把可跨请求持有的锁
type Mutex interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Factory 按 key 创建锁，Redis 不可用时使用进程内实现
type Factory interface {
	NewMutex(key string) Mutex
}

// UserKey 按用户维度的余额锁
func UserKey(userID int64) string {
	return fmt.Sprintf("coursepay:lock:user:%d", userID)
}

// TopUpKey 按充值单维度的对账锁
func TopUpKey(externalID string) string {
	return "coursepay:lock:topup:" + externalID
}

// Options 加锁重试参数
type Options struct {
	TTL           time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 100
	}
	return o
}
