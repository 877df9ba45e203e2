package redishost

import (
	"os"
	"testing"

	"github.com/ggoodman/cnc-capacity-mcp/sessions"
	"github.com/ggoodman/cnc-capacity-mcp/sessions/sessionhosttest"
	"github.com/google/uuid"
)

func TestRedisSessionHost(t *testing.T) {
	// Quick availability check to allow graceful skip in environments without Redis
	h, err := NewFromEnv()
	if err != nil {
		t.Skipf("skipping redis session host tests: %v", err)
		return
	}
	_ = h.Close()

	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessions.SessionHost {
		// A fresh prefix gives every sub-test its own empty slot.
		hh, err := New(Config{
			RedisAddr: os.Getenv("REDIS_ADDR"),
			KeyPrefix: "cnc:test:" + uuid.NewString() + ":",
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = hh.Close() })
		return hh
	})
}
