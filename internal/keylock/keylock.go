// Package keylock serializes critical sections per key. The local locker
// covers a single process; the Redis locker extends the guarantee across
// instances sharing one database.
package keylock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Unlock releases a held key. Calling it more than once is safe.
type Unlock func()

type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// New returns a Redis locker when client answers a ping, otherwise a local one.
func New(ctx context.Context, client *redis.Client, logger *slog.Logger) Locker {
	if client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			return NewRedis(client, RedisOptions{})
		} else if logger != nil {
			logger.Warn("redis unavailable, using in-process key locks", "error", err)
		}
	}
	return NewLocal()
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process per-key mutex. Entries are dropped once no caller
// holds or waits on them.
type Local struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*localEntry)}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *localEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
