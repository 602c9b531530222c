package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/studiosched/libs/db"
	"github.com/md-rashed-zaman/studiosched/libs/grpcx"
	"github.com/md-rashed-zaman/studiosched/libs/httpx"
	"github.com/md-rashed-zaman/studiosched/libs/kafkax"
	otelx "github.com/md-rashed-zaman/studiosched/libs/otel"
	"github.com/md-rashed-zaman/studiosched/libs/runtime"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/booking"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/calendar"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/config"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/consumer"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/handlers"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/inbox"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/jobs"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/lock"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/notify"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/outbox"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	outboxRepo := outbox.NewRepository()
	opts := booking.Options{
		Notifier:          notify.NewOutboxSink(pool, outboxRepo),
		Location:          loc,
		LockTTL:           cfg.Booking.LockTTL,
		SideEffectTimeout: cfg.Booking.SideEffectTimeout,
	}
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var rateLimitMW httpx.Middleware
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		opts.Locker = lock.NewRedisLock(rdb)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		rl := httpx.NewRedisRateLimiter(rdb, cfg.HTTP.RateLimitPerMinute, time.Minute, "rl:studio")
		rateLimitMW = rl.Middleware(logger, cfg.HTTP.RateLimitFailOpen)
		logger.Info("slot locking and rate limiting enabled (redis)", "redis_addr", cfg.Redis.Addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(cfg.HTTP.RateLimitPerMinute, time.Minute).Middleware()
		logger.Warn("REDIS_ADDR not set: slot locks disabled, in-memory rate limiting")
	}

	if cfg.Calendar.Addr != "" {
		conn, err := grpcx.Dial(ctx, cfg.Calendar.Addr, grpcx.DialOptions{Timeout: cfg.Calendar.DialTimeout})
		if err != nil {
			logger.Error("calendar bridge unreachable, calendar sync disabled", "addr", cfg.Calendar.Addr, "err", err)
		} else {
			defer func() { _ = conn.Close() }()
			opts.Calendar = calendar.NewClient(conn)
		}
	}

	svc := booking.NewService(storage.NewRepository(pool), logger, opts)

	g, gctx := errgroup.WithContext(ctx)

	expiry := jobs.NewExpiryWorker(pool, jobs.NewRepository(), outboxRepo, logger, jobs.WorkerConfig{
		Interval: cfg.Booking.ExpirySweepEvery,
	})
	g.Go(func() error {
		expiry.Run(gctx)
		return nil
	})

	if cfg.Kafka.Brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Kafka.Brokers)})

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.Kafka.Brokers,
			PollEvery: cfg.Kafka.PollEvery,
			BatchSize: cfg.Kafka.BatchSize,
		})
		g.Go(func() error {
			publisher.Run(gctx)
			return nil
		})

		if cfg.SMTP.NotifyEmail != "" {
			sender := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
			events := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
				Brokers: cfg.Kafka.Brokers,
				GroupID: cfg.Kafka.GroupID,
				Topics:  notify.Topics,
			}, notify.EmailHandler(sender, cfg.SMTP.NotifyEmail, logger))
			g.Go(func() error {
				events.Run(gctx)
				return nil
			})
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set: session events stay in the outbox")
	}

	api := handlers.New(svc, logger, handlers.StripeConfig{WebhookSecret: cfg.Stripe.WebhookSecret})
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", api.Routes(handlers.Authenticator{
		JWTSecret:    cfg.Auth.JWTSecret,
		TrustHeaders: cfg.Auth.TrustHeaders,
	}))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.HTTP.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.HTTP.BodyLimitBytes),
		httpx.WithTimeout(cfg.HTTP.RequestTimeout),
		rateLimitMW,
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, "studio"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	return g.Wait()
}
