package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/cnc-capacity-mcp/internal/config"
	"github.com/ggoodman/cnc-capacity-mcp/planner"
	"github.com/ggoodman/cnc-capacity-mcp/sessions"
	"github.com/ggoodman/cnc-capacity-mcp/sessions/memoryhost"
	"github.com/ggoodman/cnc-capacity-mcp/sessions/redishost"
	"github.com/ggoodman/cnc-capacity-mcp/ssehttp"
	"github.com/spf13/cobra"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// serveOptions are the flags of the serve command. Flags that are set win
// over the environment.
type serveOptions struct {
	envFile   string
	host      string
	port      int
	redisAddr string
	keepAlive time.Duration
	logLevel  string
	logFormat string
}

func (o *serveOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.envFile, "env-file", config.DefaultEnvFile, "dotenv file to load before reading the environment")
	f.StringVar(&o.host, "host", "", "interface to listen on (env HOST)")
	f.IntVar(&o.port, "port", 0, "port to listen on (env PORT)")
	f.StringVar(&o.redisAddr, "redis-addr", "", "Redis address for shared sessions (env REDIS_ADDR)")
	f.DurationVar(&o.keepAlive, "keepalive", 0, "keep-alive interval on idle streams, 0 disables (env KEEPALIVE_INTERVAL)")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	f.StringVar(&o.logFormat, "log-format", "", "json or text (env LOG_FORMAT)")
}

func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = o.host
	}
	if f.Changed("port") {
		cfg.Port = o.port
	}
	if f.Changed("redis-addr") {
		cfg.RedisAddr = o.redisAddr
	}
	if f.Changed("keepalive") {
		cfg.KeepAlive = o.keepAlive
	}
	if f.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if f.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func loadConfig(cmd *cobra.Command, opts *serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	log, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	return a.serve(ctx, ln)
}

// app is the wired server: session host, MCP handler and router.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	handler   *ssehttp.Handler
	router    http.Handler
	closeHost func() error
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	host, closeHost, err := newSessionHost(cfg)
	if err != nil {
		return nil, err
	}

	h, err := ssehttp.New(
		host,
		planner.NewServer(planner.WithLogger(log)),
		ssehttp.WithLogger(log),
		ssehttp.WithSSEPath(cfg.SSEPath),
		ssehttp.WithMessagesPath(cfg.MessagesPath),
		ssehttp.WithKeepAlive(cfg.KeepAlive),
	)
	if err != nil {
		_ = closeHost()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		log:       log,
		handler:   h,
		router:    newRouter(cfg, h, log),
		closeHost: closeHost,
	}, nil
}

// newSessionHost picks Redis when an address is configured so that several
// replicas share the session slot, and memory otherwise.
func newSessionHost(cfg *config.Config) (sessions.SessionHost, func() error, error) {
	if cfg.RedisAddr == "" {
		return memoryhost.New(), func() error { return nil }, nil
	}
	h, err := redishost.New(redishost.Config{
		RedisAddr: cfg.RedisAddr,
		KeyPrefix: cfg.SessionsKeyPrefix,
		TTL:       cfg.SessionsTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect session host: %w", err)
	}
	return h, h.Close, nil
}

// serve runs the HTTP server on ln until ctx is done, then shuts it down.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
	// Open streams never go idle on their own.
	srv.RegisterOnShutdown(func() { _ = a.handler.Close() })

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	sessionHost := "memory"
	if a.cfg.RedisAddr != "" {
		sessionHost = "redis"
	}
	a.log.InfoContext(ctx, "server.listen", slog.String("addr", ln.Addr().String()), slog.String("sse_path", a.cfg.SSEPath), slog.String("messages_path", a.cfg.MessagesPath), slog.String("session_host", sessionHost))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("server.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("server.shutdown.ok")
	return nil
}

func (a *app) Close() error {
	return errors.Join(a.handler.Close(), a.closeHost())
}
