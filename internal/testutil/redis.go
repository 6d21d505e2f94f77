package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/pkg/redis"
)

// EnvRedisAddr names the variable holding the test Redis address.
const EnvRedisAddr = "TEST_REDIS_ADDR"

// NewRedis returns a connected client, or skips the test when EnvRedisAddr is unset.
// keys are deleted before the test starts.
func NewRedis(t *testing.T, keys ...string) *goredis.Client {
	t.Helper()
	addr := os.Getenv(EnvRedisAddr)
	if addr == "" {
		t.Skipf("Skipping integration test: %s not set", EnvRedisAddr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, addr, "", 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	if len(keys) > 0 {
		require.NoError(t, client.Del(ctx, keys...).Err())
	}
	return client.Client
}
