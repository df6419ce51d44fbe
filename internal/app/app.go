package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/customer"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
	"github.com/xenking/breeze-gateway/internal/events"
	"github.com/xenking/breeze-gateway/internal/handler"
	"github.com/xenking/breeze-gateway/internal/storage/postgres"
	"github.com/xenking/breeze-gateway/internal/storage/rediscache"
	"github.com/xenking/breeze-gateway/pkg/health"
	"github.com/xenking/breeze-gateway/pkg/httpmiddleware"
)

// Telemetry provides the tracer and meter providers. *app.Telemetry
// implements it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Bool("test_mode", cfg.Breeze.TestMode),
	)

	svc, err := build(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout waits on the provider.
		WriteTimeout:   cfg.Breeze.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        svc.handler,
	}
	svc.health.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		svc.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// service is the wired application.
type service struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// build connects to the backing services and wires the HTTP handler. The
// limiter janitor stops with ctx.
func build(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) (_ *service, rerr error) {
	svc := &service{}
	defer func() {
		if rerr != nil {
			svc.close()
		}
	}()

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	svc.closers = append(svc.closers, pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	// Health check service.
	svc.health = health.New(2 * time.Second)
	svc.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	svc.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	webhookLog := postgres.NewWebhookEventLog(pool)
	var customers customer.Store = postgres.NewCustomerStore(pool)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, func() { _ = rdb.Close() })
		svc.health.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		customers = rediscache.NewCustomerCache(rdb, customers, cfg.Redis.TTL)
		lg.Info("Customer cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Payment events.
	var publisher payment.Publisher = events.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		w, err := events.NewKafkaWriter(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create kafka writer")
		}
		kp := events.NewKafkaPublisher(w)
		svc.closers = append(svc.closers, func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		})
		publisher = kp
		lg.Info("Publishing payment events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Provider client.
	provider, err := breeze.NewClient(breeze.Config{
		BaseURL: breeze.ResolveBaseURL(cfg.Breeze.APIBaseURL, nil),
		APIKey:  cfg.Breeze.APIKey(),
		Timeout: cfg.Breeze.Timeout,
		Breaker: breeze.BreakerConfig{
			Enabled:     cfg.Breeze.Breaker.Enabled,
			MaxFailures: cfg.Breeze.Breaker.MaxFailures,
			OpenTimeout: cfg.Breeze.Breaker.OpenTimeout,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create breeze client")
	}

	// Domain services.
	returnURL, err := cfg.ReturnURL()
	if err != nil {
		return nil, err
	}
	if cfg.Breeze.WebhookSecret == "" {
		lg.Warn("Webhook secret is not configured, webhooks will be rejected")
	}
	gateway, err := payment.NewService(payment.Config{
		ReturnURL:           returnURL,
		WebhookSecret:       cfg.Breeze.WebhookSecret,
		PaymentMethods:      cfg.Breeze.PaymentMethods,
		SupportedCurrencies: cfg.Breeze.SupportedCurrencies,
	}, orderRepo, customers, provider,
		payment.WithPublisher(publisher),
		payment.WithCart(events.NewCartClearer(publisher)),
		payment.WithEventLog(webhookLog),
		payment.WithTracerProvider(m.TracerProvider()),
		payment.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create payment service")
	}

	// HTTP handlers.
	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	go limiter.Run(ctx)

	h := handler.NewHandler(handler.Config{
		Store: handler.StoreURLs{
			Cart:         cfg.Store.CartURL,
			Checkout:     cfg.Store.CheckoutURL,
			Confirmation: cfg.Store.ConfirmationURL,
		},
	}, gateway, orderRepo, webhookLog)
	router := h.Routes(handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper)), limiter.Middleware())
	router.Get("/livez", svc.health.LiveEndpoint)
	router.Get("/readyz", svc.health.ReadyEndpoint)

	svc.handler = otelhttp.NewHandler(
		httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(lg),
			httpmiddleware.LogRequests(),
		),
		"breeze-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)
	return svc, nil
}
