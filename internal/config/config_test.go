package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"HOST", "PORT", "SSE_PATH", "MESSAGES_PATH", "KEEPALIVE_INTERVAL",
	"REDIS_ADDR", "SESSIONS_KEY_PREFIX", "SESSIONS_TTL", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:3000" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
	if cfg.SSEPath != "/sse" || cfg.MessagesPath != "/messages" {
		t.Fatalf("unexpected paths %s %s", cfg.SSEPath, cfg.MessagesPath)
	}
	if cfg.KeepAlive != 25*time.Second || cfg.SessionsTTL != time.Minute {
		t.Fatalf("unexpected durations %s %s", cfg.KeepAlive, cfg.SessionsTTL)
	}
	if cfg.RedisAddr != "" || cfg.SessionsKeyPrefix != "cnc:sessions:" {
		t.Fatalf("unexpected session settings %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log settings %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("KEEPALIVE_INTERVAL", "0s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:8080" || cfg.KeepAlive != 0 || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already present.
	os.Unsetenv("PORT")
	os.Unsetenv("SSE_PATH")
	t.Setenv("MESSAGES_PATH", "/from-env")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORT=4000\nSSE_PATH=/events\nMESSAGES_PATH=/from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4000 || cfg.SSEPath != "/events" || cfg.MessagesPath != "/from-env" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("a missing env file must be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"port out of range", "PORT", "70000", "out of range"},
		{"relative path", "SSE_PATH", "sse", "must start with /"},
		{"same paths", "MESSAGES_PATH", "/sse", "must differ"},
		{"negative keep-alive", "KEEPALIVE_INTERVAL", "-1s", "must not be negative"},
		{"bad level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"bad format", "LOG_FORMAT", "xml", "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "text"}
	log, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "level=WARN msg=shown") {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	cfg.LogFormat = "json"
	log, _ = cfg.NewLogger(&buf)
	log.Error("boom")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}
