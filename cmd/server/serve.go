package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/clinicflow/identity-service/internal/config"
	"github.com/clinicflow/identity-service/internal/database"
	"github.com/clinicflow/identity-service/internal/handler"
	"github.com/clinicflow/identity-service/internal/metrics"
	"github.com/clinicflow/identity-service/internal/middleware"
	"github.com/clinicflow/identity-service/internal/queue"
	"github.com/clinicflow/identity-service/internal/repository"
	"github.com/clinicflow/identity-service/internal/router"
	"github.com/clinicflow/identity-service/internal/service"
	"github.com/clinicflow/identity-service/internal/utils"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	e, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver, "mail", cfg.MailDriver)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := e.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// buildServer wires the store, mail transport, auth service and routes.
// cleanup releases every connection opened here.
func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*echo.Echo, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Redis is optional for the rate limiter and required for the redis store.
	rdb, redisErr := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if redisErr == nil {
		closers = append(closers, func() { _ = rdb.Close() })
	} else if cfg.StoreDriver != config.StoreRedis {
		logger.Warn("redis unavailable; rate limiting disabled", "error", redisErr)
	}

	users, closeStore, err := openStore(ctx, cfg, rdb, redisErr)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeStore)

	issuer, err := utils.NewTokenIssuer(utils.IssuerConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.AccessTTL,
	}, nil)
	if err != nil {
		cleanup()
		return nil, nil, oops.Code("CONFIG_INVALID").With("operation", "build token issuer").Wrap(err)
	}

	auth, err := service.NewAuthService(users, utils.NewBcryptHasher(cfg.BcryptCost), issuer, newNotifier(cfg, logger),
		service.Config{RefreshTTL: cfg.RefreshTTL, ResetTTL: cfg.ResetTTL, ResetURLBase: cfg.ResetURLBase},
		service.WithLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(logger))

	router.RegisterRoutes(e, metrics.NewRegistry())
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	router.RegisterAuth(e, handler.NewAuthHandler(auth, logger), issuer, limiter)
	return e, cleanup, nil
}

func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, redisErr error) (repository.UserStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return repository.NewMemoryStore(), func() {}, nil
	case config.StoreRedis:
		if redisErr != nil {
			return nil, nil, oops.Code("STORE_CONNECT_FAILED").With("driver", cfg.StoreDriver).Wrap(redisErr)
		}
		return repository.NewRedisUserStore(rdb, cfg.RedisPrefix), func() {}, nil
	default:
		db, err := database.Open(ctx, dbParams(cfg))
		if err != nil {
			return nil, nil, oops.Code("STORE_CONNECT_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
		}
		return repository.NewUserRepo(db), func() { _ = db.Close() }, nil
	}
}

func newNotifier(cfg config.Config, logger *slog.Logger) service.Notifier {
	if cfg.MailDriver == config.MailOutbox {
		return queue.NewFileOutbox(cfg.MailOutboxPath)
	}
	return queue.NewPublisher(cfg.RabbitMQURL, cfg.MailQueue, logger)
}

func dbParams(cfg config.Config) database.Params {
	return database.Params{User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName}
}

// requestLogger writes one access log line per request into slog.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		HandleError:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, "request", slog.Group("http", attrs...), slog.String("error", v.Error.Error()))
				return nil
			}
			logger.InfoContext(c.Request().Context(), "request", slog.Group("http", attrs...))
			return nil
		},
	})
}
