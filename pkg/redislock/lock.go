// Package redislock provides owner-tagged mutual exclusion on top of Redis
// SETNX with a TTL.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTTL  = 25 * time.Hour
	defaultPoll = 50 * time.Millisecond
)

// ErrNotAcquired is returned by AcquireWait when the wait budget runs out.
var ErrNotAcquired = errors.New("lock not acquired")

// Lock coordinates exclusive work across processes.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Store defines the redis operations the lock relies on.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLock implements Lock using SETNX + TTL. A lock value is a random owner
// token so only the holder can release it.
type RedisLock struct {
	client Store
	key    string
	ttl    time.Duration
	poll   time.Duration
	owner  string
}

// New constructs a Redis-backed lock.
func New(client Store, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl, poll: defaultPoll}, nil
}

// Key returns the redis key guarded by the lock.
func (l *RedisLock) Key() string { return l.key }

// Acquire tries once to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// AcquireWait polls Acquire until it succeeds, ctx ends, or wait elapses.
func (l *RedisLock) AcquireWait(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// Release frees the lock only if this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.client.CompareAndDelete(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
