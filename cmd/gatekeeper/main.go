package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/gatekeeper/adapters/captcha"
	"github.com/layer-3/gatekeeper/adapters/directory"
	"github.com/layer-3/gatekeeper/adapters/events"
	"github.com/layer-3/gatekeeper/adapters/store"
	"github.com/layer-3/gatekeeper/adapters/tokenizer"
	"github.com/layer-3/gatekeeper/config"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/logging"
	"github.com/layer-3/gatekeeper/ports"
	"github.com/layer-3/gatekeeper/service"
	transport "github.com/layer-3/gatekeeper/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			newRedisClient,
			newRefreshStore,
			newChallengeStore,
			newDirectory,
			newTokenizer,
			newEventPublisher,
			newChallengeGate,
			newTokenIssuer,
			newAuthService,
			newMetrics,
			newRouter,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(startHTTPServer),
	)

	app.Run()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Dev: cfg.IsDevelopment()})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newRefreshStore(client redis.UniversalClient) ports.RefreshRecordStore {
	return store.NewRedisRefreshStore(client)
}

func newChallengeStore(client redis.UniversalClient) ports.ChallengeStore {
	return store.NewRedisChallengeStore(client)
}

// newDirectory uses PostgreSQL when DATABASE_URL is set and an in-memory
// directory otherwise. The bootstrap principal is seeded into either.
func newDirectory(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (ports.PrincipalDirectory, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var bootstrap core.Principal
	if cfg.Bootstrap.Enabled() {
		bootstrap = core.Principal{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(cfg.Bootstrap.AccountName)).String(),
			AccountName: cfg.Bootstrap.AccountName,
			Email:       cfg.Bootstrap.Email,
			Scopes:      cfg.Bootstrap.Scopes,
		}
	}

	if cfg.DatabaseURL == "" {
		dir := directory.NewMemoryDirectory(bcrypt.DefaultCost)
		if cfg.Bootstrap.Enabled() {
			if err := dir.Add(bootstrap, cfg.Bootstrap.Password); err != nil {
				return nil, fmt.Errorf("seed bootstrap principal: %w", err)
			}
		} else {
			logger.Warn("no DATABASE_URL and no bootstrap principal, nobody can log in")
		}
		return dir, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	dir := directory.NewPostgresDirectory(pool)
	if err := dir.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if cfg.Bootstrap.Enabled() {
		if err := dir.Upsert(ctx, bootstrap, cfg.Bootstrap.Password); err != nil {
			return nil, fmt.Errorf("seed bootstrap principal: %w", err)
		}
	}
	return dir, nil
}

func newTokenizer(cfg config.Config) (ports.Tokenizer, error) {
	return tokenizer.NewJWTTokenizer([]byte(cfg.Tokens.AccessSecret), []byte(cfg.Tokens.RefreshSecret))
}

func newEventPublisher(lc fx.Lifecycle, cfg config.Config, client redis.UniversalClient, logger *zap.Logger) (ports.EventPublisher, error) {
	if !cfg.EventsEnabled {
		return events.NoopPublisher{}, nil
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		events.NewZapLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create redis stream publisher: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return events.NewWatermillPublisher(publisher), nil
}

func newChallengeGate(cfg config.Config, challenges ports.ChallengeStore, logger *zap.Logger) *service.ChallengeGate {
	return service.NewChallengeGate(
		challenges,
		captcha.NewImageRenderer(cfg.Challenge.Length),
		cfg.Challenge.TTL,
		cfg.Challenge.Length,
		service.WithChallengeLogger(logger.Named("captcha")),
	)
}

func newTokenIssuer(cfg config.Config, tok ports.Tokenizer, records ports.RefreshRecordStore) *service.TokenIssuer {
	return service.NewTokenIssuer(tok, records, service.TokenLifetimes{
		Access:  cfg.Tokens.AccessTTL,
		Refresh: cfg.Tokens.RefreshTTL,
	}, time.Now)
}

func newAuthService(
	cfg config.Config,
	gate *service.ChallengeGate,
	issuer *service.TokenIssuer,
	records ports.RefreshRecordStore,
	dir ports.PrincipalDirectory,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *service.AuthService {
	return service.NewAuthService(gate, issuer, records, dir, service.Options{
		RotateRefreshTokens: cfg.Tokens.RotateRefresh,
		Events:              publisher,
		Logger:              logger,
	})
}

func newMetrics() (*transport.Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return transport.NewMetrics(registry)
}

func newRouter(cfg config.Config, authService *service.AuthService, metrics *transport.Metrics, logger *zap.Logger) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return transport.SetupRouter(authService, transport.RouterOptions{
		Logger:      logger.Named("http"),
		Metrics:     metrics,
		RateLimiter: transport.NewRateLimiter(cfg.RateLimitRPM),
	})
}

func startHTTPServer(lc fx.Lifecycle, cfg config.Config, router *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
