// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when present. Variables already set in the
// process environment win over the file.
const DefaultEnvFile = ".env"

// Config is the runtime configuration of the server binary.
type Config struct {
	// Host is the interface to listen on. ENV: HOST
	Host string `env:"HOST,default=0.0.0.0"`
	// Port to listen on. ENV: PORT
	Port int `env:"PORT,default=3000"`

	// SSEPath opens the event stream. ENV: SSE_PATH
	SSEPath string `env:"SSE_PATH,default=/sse"`
	// MessagesPath receives client messages. ENV: MESSAGES_PATH
	MessagesPath string `env:"MESSAGES_PATH,default=/messages"`
	// KeepAlive is the interval between keep-alive comments on idle
	// streams, zero disables them. ENV: KEEPALIVE_INTERVAL
	KeepAlive time.Duration `env:"KEEPALIVE_INTERVAL,default=25s"`

	// RedisAddr selects the Redis session host when set, otherwise sessions
	// are kept in memory. ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR"`
	// SessionsKeyPrefix namespaces Redis keys. ENV: SESSIONS_KEY_PREFIX
	SessionsKeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=cnc:sessions:"`
	// SessionsTTL bounds how long Redis keeps the slot of a dead replica.
	// ENV: SESSIONS_TTL
	SessionsTTL time.Duration `env:"SESSIONS_TTL,default=1m"`

	// LogLevel is one of debug, info, warn, error. ENV: LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL,default=info"`
	// LogFormat is json or text. ENV: LOG_FORMAT
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load reads envFile, if it exists, into the process environment and decodes
// the configuration from it. An empty envFile skips the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	for name, p := range map[string]string{"SSE_PATH": c.SSEPath, "MESSAGES_PATH": c.MessagesPath} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s %q must start with /", name, p))
		}
	}
	if c.SSEPath == c.MessagesPath {
		errs = append(errs, fmt.Errorf("SSE_PATH and MESSAGES_PATH must differ"))
	}
	if c.KeepAlive < 0 {
		errs = append(errs, fmt.Errorf("KEEPALIVE_INTERVAL must not be negative"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Addr is the listen address, host and port joined.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown LOG_LEVEL %q", s)
	}
	return level, nil
}
