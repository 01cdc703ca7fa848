package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "plate:ABC-123")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for m := maxSeen.Load(); n > m && !maxSeen.CompareAndSwap(m, n); m = maxSeen.Load() {
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	exerciseMutualExclusion(t, l)
	assert.Equal(t, 0, l.size(), "idle keys should be released")
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal()
	a, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer a()

	b, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)
	b()
}

func TestLocal_ContextCancelWhileWaiting(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, l.size())
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis_MutualExclusion(t *testing.T) {
	_, client := newMiniredis(t)
	exerciseMutualExclusion(t, NewRedis(client, RedisOptions{Retry: time.Millisecond}))
}

func TestRedis_ReleaseOnlyOwnToken(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedis(client, RedisOptions{TTL: time.Second})

	unlock, err := l.Lock(context.Background(), "fail:student:stu_1:gate_main")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	key := "campusgate:lock:fail:student:stu_1:gate_main"
	mr.Del(key)
	require.NoError(t, mr.Set(key, "someone-else"))

	unlock()
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedis_WaitsUntilContextDone(t *testing.T) {
	_, client := newMiniredis(t)
	l := NewRedis(client, RedisOptions{Retry: time.Millisecond})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_FallsBackToLocal(t *testing.T) {
	assert.IsType(t, &Local{}, New(context.Background(), nil, nil))

	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer dead.Close()
	assert.IsType(t, &Local{}, New(context.Background(), dead, nil))

	_, client := newMiniredis(t)
	assert.IsType(t, &Redis{}, New(context.Background(), client, nil))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClient(context.Background(), RedisConfig{})
	assert.Error(t, err)
}
