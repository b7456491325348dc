package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/config"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/internal/rate"
	otelexport "github.com/MrEthical07/goSession/metrics/export/otel"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/password"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP session service",
		Long: `Serve POST /session (log in), GET /session (re-authenticate),
GET /me (guarded example), GET /healthz and the metrics endpoint.`,
		RunE: runServe,
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringArray("seed", nil, "create username:email:password at startup (repeatable)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.Setup("sessiond", version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, cmd.OutOrStdout())
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	seeds, err := cmd.Flags().GetStringArray("seed")
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if err := a.seed(ctx, seed); err != nil {
			return err
		}
	}

	handler, err := a.routes()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
		"readonly", cfg.Session.ReadOnly,
		"throttle", cfg.Throttle.Enabled,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("SERVER_FAILED").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    userStore
	hasher   *password.Auto
	engine   *goSession.Engine
	sessions middleware.Sessions
	closers  []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, auditOut io.Writer) (*app, error) {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	hasher, err := goSession.NewPasswordHasher(engineCfg.Password)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("field", "password").Wrap(err)
	}

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: store, hasher: hasher, closers: []func(){closeStore}}

	var sink goSession.AuditSink
	switch cfg.Audit.Sink {
	case "log":
		sink = goSession.NewSlogSink(logger)
	case "json":
		sink = goSession.NewJSONWriterSink(auditOut)
	}

	engine, err := goSession.New().
		WithConfig(engineCfg).
		WithUserResolver(store).
		WithSecureCompare(hasher).
		WithAuditSink(sink).
		WithLogger(logger).
		WithTracerProvider(otel.GetTracerProvider()).
		Build()
	if err != nil {
		a.Close()
		return nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	a.engine = engine
	a.sessions = engine
	a.closers = append(a.closers, engine.Close)

	if cfg.Throttle.Enabled {
		if err := a.enableThrottle(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Metrics.Enabled {
		exp, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("sessiond"), engine)
		if err != nil {
			a.Close()
			return nil, oops.Code("METRICS_INIT_FAILED").Wrap(err)
		}
		a.closers = append(a.closers, func() { _ = exp.Close() })
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) routes() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("/session", middleware.SessionHandler(a.sessions))
	mux.Handle("GET /me", middleware.Guard(a.engine)(http.HandlerFunc(a.me)))
	mux.HandleFunc("GET /healthz", a.healthz)

	if a.cfg.Metrics.Enabled {
		h, err := promexport.Handler(a.engine)
		if err != nil {
			return nil, oops.Code("METRICS_INIT_FAILED").Wrap(err)
		}
		mux.Handle("GET "+a.cfg.Metrics.Path, h)
	}
	return mux, nil
}

// enableThrottle puts a Redis-backed failed-login throttle in front of Initiate.
func (a *app) enableThrottle(ctx context.Context) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Store.RedisAddr,
		Password: a.cfg.Store.RedisPassword,
		DB:       a.cfg.Store.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })

	if err := connectWithRetry(ctx, a.cfg.Store, a.logger, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		return err
	}
	limiter, err := rate.New(client, rate.Config{
		MaxAttempts: a.cfg.Throttle.MaxAttempts,
		Window:      a.cfg.Throttle.Window,
		PerIP:       a.cfg.Throttle.PerIP,
		Prefix:      a.cfg.Store.RedisPrefix,
	})
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "throttle").Wrap(err)
	}
	a.sessions = throttledSessions{Sessions: a.engine, limiter: limiter, logger: a.logger}
	return nil
}

func (a *app) me(w http.ResponseWriter, r *http.Request) {
	res, _ := middleware.SessionFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(res.User)
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := a.store.Ping(ctx); err != nil {
		a.logger.WarnContext(ctx, "health check failed", "error", err)
		status, code = "store_unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// seed creates a user from "username:email:password".
func (a *app) seed(ctx context.Context, spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return oops.Code("SEED_INVALID").Errorf("seed must be username:email:password")
	}
	u, err := createUser(ctx, a.store, a.hasher, goSession.UserRecord{Username: parts[0], Email: parts[1]}, parts[2])
	if err != nil {
		return err
	}
	a.logger.Info("seeded user", "user_id", u.ID, "username", u.Username)
	return nil
}

func createUser(ctx context.Context, s userStore, hasher *password.Auto, user goSession.UserRecord, secret string) (goSession.UserRecord, error) {
	hash, err := hasher.Hash(secret)
	if err != nil {
		return goSession.UserRecord{}, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	u, err := s.Put(ctx, user, hash)
	if err != nil {
		return goSession.UserRecord{}, oops.Code("USER_CREATE_FAILED").With("username", user.Username).Wrap(err)
	}
	return u, nil
}
