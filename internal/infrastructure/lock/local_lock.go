package lock

import (
	"context"
	"sync"
)

// LocalFactory 进程内锁，单实例部署或未启用 Redis 时使用
type LocalFactory struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalFactory() *LocalFactory {
	return &LocalFactory{slots: make(map[string]*slot)}
}

func (f *LocalFactory) NewMutex(key string) Mutex {
	return &localMutex{factory: f, key: key}
}

func (f *LocalFactory) acquire(key string) *slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		f.slots[key] = s
	}
	s.refs++
	return s
}

func (f *LocalFactory) release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(f.slots, key)
	}
}

type localMutex struct {
	factory *LocalFactory
	key     string
	held    *slot
}

func (m *localMutex) Lock(ctx context.Context) error {
	s := m.factory.acquire(m.key)
	select {
	case s.ch <- struct{}{}:
		m.held = s
		return nil
	case <-ctx.Done():
		m.factory.release(m.key)
		return ctx.Err()
	}
}

func (m *localMutex) Unlock(context.Context) error {
	if m.held == nil {
		return nil
	}
	<-m.held.ch
	m.held = nil
	m.factory.release(m.key)
	return nil
}
