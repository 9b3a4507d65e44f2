package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/metrics"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/verifier"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	transport "github.com/layer-3/walletauth/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// app owns the HTTP server and everything that has to be closed on shutdown.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Database.Driver == "redis" || (cfg.Events.Enabled && cfg.Events.Backend == "redisstream") {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		a.closers = append(a.closers, redisClient.Close)
	}

	nonces, err := a.buildStore(ctx, redisClient)
	if err != nil {
		return nil, err
	}

	keys, err := tokenizer.ParseKeyMaterial(cfg.Auth.Algorithm, cfg.Secrets.KeyPair)
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}
	tok := tokenizer.NewJWTTokenizer(keys,
		tokenizer.WithTTL(cfg.Auth.TokenTTL),
		tokenizer.WithIssuer(cfg.Auth.Issuer),
	)

	sigVerifier, err := verifier.New(cfg.Auth.SignatureScheme, verifier.EIP712Domain{
		Name:              cfg.Auth.EIP712.Name,
		Version:           cfg.Auth.EIP712.Version,
		ChainID:           cfg.Auth.EIP712.ChainID,
		VerifyingContract: cfg.Auth.EIP712.VerifyingContract,
	})
	if err != nil {
		return nil, fmt.Errorf("creating signature verifier: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithConsumeOnSuccess(cfg.Auth.ConsumeNonce),
		service.WithNonceMaxAge(cfg.Auth.NonceMaxAge),
	}

	if cfg.Events.Enabled {
		pub, err := a.buildPublisher(redisClient)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithEventPublisher(events.NewWatermillPublisher(pub, cfg.Events.Topic)))
	}

	var routerOpts []transport.RouterOption
	routerOpts = append(routerOpts, transport.WithLogger(logger))

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, service.WithMetrics(metrics.NewPrometheus(reg)))
		routerOpts = append(routerOpts, transport.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	if pinger, ok := nonces.(interface{ Ping(context.Context) error }); ok {
		routerOpts = append(routerOpts, transport.WithHealthCheck(pinger.Ping))
	}

	authService := service.NewAuthService(nonces, sigVerifier, tok, opts...)

	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(authService, routerOpts...)

	a.server = &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *app) buildStore(ctx context.Context, redisClient *redis.Client) (ports.NonceStore, error) {
	switch a.cfg.Database.Driver {
	case "memory":
		a.logger.Warn("using in-memory nonce store, nonces are lost on restart")
		return store.NewMemoryStore(), nil

	case "sqlite":
		s, err := store.NewSQLiteStore(ctx, a.cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil

	case "postgres":
		s, err := store.NewPostgresStore(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if a.cfg.Database.Migrate {
			if err := s.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "redis":
		return store.NewRedisStore(redisClient, a.cfg.Auth.NonceMaxAge), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
	}
}

func (a *app) buildPublisher(redisClient *redis.Client) (message.Publisher, error) {
	wmLogger := watermill.NewSlogLogger(a.logger.With("component", "events"))

	switch a.cfg.Events.Backend {
	case "gochannel":
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		a.closers = append(a.closers, pubSub.Close)
		return pubSub, nil

	case "redisstream":
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("creating redis stream publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown events backend %q", a.cfg.Events.Backend)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *app) Run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// close runs the closers in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
