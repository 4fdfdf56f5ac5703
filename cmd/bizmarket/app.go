package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/bizmarket/internal/db"
	"github.com/nkiryanov/bizmarket/internal/handlers"
	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/metrics"
	"github.com/nkiryanov/bizmarket/internal/repository"
	"github.com/nkiryanov/bizmarket/internal/repository/memory"
	"github.com/nkiryanov/bizmarket/internal/repository/postgres"
	"github.com/nkiryanov/bizmarket/internal/repository/redis"
	"github.com/nkiryanov/bizmarket/internal/service/auth"
	"github.com/nkiryanov/bizmarket/internal/service/auth/reset"
	"github.com/nkiryanov/bizmarket/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/bizmarket/internal/service/mailer"
)

const (
	shutdownTimeout = 5 * time.Second
	resetKeyPrefix  = "bizmarket:reset:"
)

type ServerApp struct {
	ListenAddr  string
	MetricsAddr string
	Handler     http.Handler

	logger   logger.Logger
	pool     *pgxpool.Pool
	registry *reset.Registry

	// Released in reverse order when server stops
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{
		ListenAddr:  c.ListenAddr,
		MetricsAddr: c.MetricsAddr,
		logger:      logger,
	}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.pool = pool
	app.closers = append(app.closers, pool.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	resetRepo, err := app.resetTokenRepo(ctx, c, storage)
	if err != nil {
		return nil, err
	}

	sender, err := newSender(c, logger)
	if err != nil {
		return nil, err
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	hasher, err := auth.NewBcryptHasher(c.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error while creating password hasher. Err: %w", err)
	}

	app.registry = reset.New(resetRepo, logger, reset.Config{})
	authService, err := auth.NewService(
		auth.Config{Hasher: hasher, ResetURL: c.ResetURL},
		tokenManager,
		storage.User(),
		app.registry,
		sender,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(authService, logger)
	return app, nil
}

func (s *ServerApp) resetTokenRepo(ctx context.Context, c *Config, storage *postgres.Storage) (repository.ResetTokenRepo, error) {
	switch c.ResetStore {
	case ResetStoreRedis:
		client, err := redis.Connect(ctx, redis.Config{ConnectionURL: c.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		return redis.NewResetTokenRepo(client, resetKeyPrefix), nil
	case ResetStoreMemory:
		if c.Environment != logger.EnvDev {
			s.logger.Warn("memory reset token store is not shared between instances, run single instance only")
		}
		return memory.NewResetTokenRepo(), nil
	default:
		return storage.ResetToken(), nil
	}
}

func newSender(c *Config, l logger.Logger) (mailer.Sender, error) {
	postmarkCfg := mailer.PostmarkConfig{
		ServerToken:  c.PostmarkServerToken,
		AccountToken: c.PostmarkAccountToken,
		SenderEmail:  c.SenderEmail,
	}
	if !postmarkCfg.Enabled() {
		l.Warn("postmark is not configured, reset links are written to log")
		return mailer.NewLogSender(l), nil
	}

	sender, err := mailer.NewPostmarkSender(postmarkCfg)
	if err != nil {
		return nil, fmt.Errorf("error while creating mail sender. Err: %w", err)
	}
	return sender, nil
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metricsServer *http.Server
	if s.MetricsAddr != "" {
		metricsServer = metrics.BootstrapServer(s.MetricsAddr, s.pool.Ping, s.logger)
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.registry.Sweep(srvCtx, reset.DefaultSweepInterval)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		if metricsServer != nil {
			_ = metricsServer.Shutdown(timeoutCtx)
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
