package redishost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/cnc-capacity-mcp/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr      = "localhost:6379"
	defaultKeyPrefix = "cnc:sessions:"
	defaultTTL       = time.Minute
	pollBlock        = 500 * time.Millisecond
	readBatch        = 16
)

// Config for Redis-backed SessionHost. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=cnc:sessions:"`
	// TTL bounds how long the slot survives a replica that stopped polling.
	// ENV: SESSIONS_TTL
	TTL time.Duration `env:"SESSIONS_TTL,default=1m"`
}

type Host struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ sessions.SessionHost = (*Host)(nil)

func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = defaultAddr
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Host{client: cl, keyPrefix: prefix, ttl: ttl}, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

// --- Key helpers ---

func (h *Host) slotKey() string                   { return h.keyPrefix + "slot" }
func (h *Host) liveKey(sessionID string) string   { return h.keyPrefix + "live:" + sessionID }
func (h *Host) streamKey(sessionID string) string { return h.keyPrefix + "stream:" + sessionID }

func (h *Host) ttlMillis() int64 { return h.ttl.Milliseconds() }

// --- Slot ---

var claimScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
if prev then
  return prev
end
return ''
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

func (h *Host) ClaimSlot(ctx context.Context, sessionID string) (string, error) {
	keys := []string{h.slotKey(), h.liveKey(sessionID)}
	prev, err := claimScript.Run(ctx, h.client, keys, sessionID, h.ttlMillis()).Text()
	if err != nil {
		return "", err
	}
	return prev, nil
}

func (h *Host) CurrentSlot(ctx context.Context) (string, error) {
	id, err := h.client.Get(ctx, h.slotKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (h *Host) ReleaseSlot(ctx context.Context, sessionID string) (bool, error) {
	n, err := releaseScript.Run(context.WithoutCancel(ctx), h.client, []string{h.slotKey()}, sessionID).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- Messaging via Redis Streams ---

var publishScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local id = redis.call('XADD', KEYS[2], '*', 'd', ARGV[1])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return id
`)

// touchScript extends the lifetime of a live session and reports whether it
// is still live.
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then
  return 0
end
redis.call('PEXPIRE', KEYS[2], ARGV[2])
redis.call('PEXPIRE', KEYS[3], ARGV[2])
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	keys := []string{h.liveKey(sessionID), h.streamKey(sessionID)}
	id, err := publishScript.Run(ctx, h.client, keys, data, h.ttlMillis()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", sessions.ErrSessionNotFound
		}
		return "", err
	}
	return id, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, handler sessions.MessageHandlerFunction) error {
	key := h.streamKey(sessionID)
	touchKeys := []string{h.slotKey(), h.liveKey(sessionID), key}
	start := "0"

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		live, err := touchScript.Run(ctx, h.client, touchKeys, sessionID, h.ttlMillis()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if live == 0 {
			return nil
		}

		res, err := h.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, start}, Count: readBatch, Block: pollBlock}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if len(res) == 0 {
			continue
		}
		for _, m := range res[0].Messages {
			start = m.ID
			var payload []byte
			switch v := m.Values["d"].(type) {
			case string:
				payload = []byte(v)
			case []byte:
				payload = v
			default:
				payload = []byte(fmt.Sprintf("%v", v))
			}
			if err := handler(ctx, m.ID, payload); err != nil {
				return err
			}
			// Best-effort: a failed XDEL only means the entry lingers until the queue expires.
			_ = h.client.XDel(context.WithoutCancel(ctx), key, m.ID).Err()
		}
	}
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	c := context.WithoutCancel(ctx)
	return h.client.Del(c, h.liveKey(sessionID), h.streamKey(sessionID)).Err()
}
