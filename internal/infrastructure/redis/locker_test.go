package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable returns a client for a port nothing listens on.
func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "posting:tenant-1", lockKey("tenant-1"))
}

func TestNewPostingLocker_DefaultTTL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	l := NewPostingLocker(rdb, 0, logger)

	assert.Equal(t, DefaultLockTTL, l.ttl)
}

func TestPostingLocker_Lock_ServerDown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	l := NewPostingLocker(unreachable(t), time.Second, logger)

	release, err := l.Lock(context.Background(), "tenant-1")

	require.Error(t, err)
	assert.Nil(t, release)
	assert.NotErrorIs(t, err, ErrLockNotObtained)
	assert.ErrorContains(t, err, "obtain lock posting:tenant-1")
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rdb, err := Connect(ctx, "127.0.0.1:1")

	assert.Nil(t, rdb)
	assert.ErrorContains(t, err, "ping redis 127.0.0.1:1")
}
