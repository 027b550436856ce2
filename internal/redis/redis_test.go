package redisclient

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
)

func getRedisAddr(tb testing.TB) string {
	addr, ok := os.LookupEnv("TEST_REDIS_ADDR")
	if !ok || addr == "" {
		tb.Skip("TEST_REDIS_ADDR missing")
	}
	return addr
}

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb, err := NewRedisClient(context.Background(), config.Config{RedisAddr: getRedisAddr(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(config.Config{RedisAddr: "cache:6379", RedisUsername: "svc", RedisPassword: "pw"})

	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "svc", opts.Username)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 10, opts.PoolSize)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "lock:doctor-counter-audit", lockKey("doctor-counter-audit"))
}

func TestRedisLocker_Exclusive(t *testing.T) {
	rdb := newTestClient(t)
	locker := NewRedisLocker(rdb, 5*time.Second)
	ctx := context.Background()
	name := "test-" + uuid.NewString()

	err := locker.WithLock(ctx, name, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, name, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// Released after the first holder returns.
	ran := false
	err = locker.WithLock(ctx, name, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRedisLocker_PropagatesError(t *testing.T) {
	rdb := newTestClient(t)
	locker := NewRedisLocker(rdb, 5*time.Second)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "test-"+uuid.NewString(), func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestStreamPublisher_Publish(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	stream := "test:events:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), stream) })

	pub := NewStreamPublisher(rdb, stream)
	require.NoError(t, pub.Publish(ctx, "APPOINTMENT_RESERVED", []byte(`{"appointment_id":3}`)))

	msgs, err := rdb.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "APPOINTMENT_RESERVED", msgs[0].Values["event_type"])
	assert.Equal(t, `{"appointment_id":3}`, msgs[0].Values["payload"])
}
