package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"herald/internal/admin"
	"herald/internal/broker"
	"herald/internal/config"
	"herald/internal/constants"
	"herald/internal/consumer"
	"herald/internal/dedup"
	"herald/internal/ingress"
	"herald/internal/logger"
	"herald/internal/webhook"
	"herald/pkg/bootstrap"
	"herald/pkg/health"
	"herald/pkg/logging"
	"herald/pkg/metrics"
	"herald/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	consumer       *consumer.Consumer
	poller         broker.Consumer
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	breakers       []health.Checker
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

// Initialize wires the delivery pipeline. worker adds the queue poller and
// the ops HTTP server; Lambda invocations only need the consumer.
func (a *App) Initialize(ctx context.Context, worker bool) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	if err := a.InitQueue(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redis = rdb

	a.InitDeadLetterSink()
	a.initConsumer()

	if !worker {
		return nil
	}

	if a.Config.Ingress.Type != constants.TransportSQS {
		return fmt.Errorf("worker mode polls the queue, ingress type %q is push-only", a.Config.Ingress.Type)
	}
	poller := broker.NewSQSConsumer(a.Queue, a.Config.Queue, a.Logger)
	poller.SetServiceName(constants.ServiceName)
	a.poller = poller

	a.initHTTPServer(ctx)
	return nil
}

func (a *App) initConsumer() {
	initCtx := logging.WithServiceName(context.Background(), constants.ServiceName)

	var sender webhook.Sender = webhook.NewClient(a.Config.Webhook)
	if a.Config.CircuitBreaker.Enabled {
		breaker := webhook.NewCircuitBreakerSender(sender, a.Config.CircuitBreaker)
		a.breakers = append(a.breakers, health.NewCircuitBreakerChecker("webhook_breaker", breaker))
		sender = breaker
		a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for webhook delivery")
	}

	var adapter ingress.Adapter
	switch a.Config.Ingress.Type {
	case constants.TransportSNS:
		adapter = ingress.NewSNSAdapter()
	default:
		adapter = ingress.NewSQSAdapter(a.Queue, a.Config.Queue.URL)
	}

	opts := []consumer.Option{consumer.WithConcurrency(a.Config.Consumer.Concurrency)}
	if a.redis != nil {
		var repo dedup.Repository = dedup.NewRepository(a.redis)
		if a.Config.CircuitBreaker.Enabled {
			breaker := dedup.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
			a.breakers = append(a.breakers, health.NewCircuitBreakerChecker("ledger_breaker", breaker))
			repo = breaker
			a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for delivery ledger")
		}
		opts = append(opts, consumer.WithLedger(dedup.NewLedger(repo, a.Config.Database.Redis.TTLSeconds, a.Logger)))
	}

	a.consumer = consumer.New(adapter, sender, a.Policy(), a.Logger, opts...)
	a.Logger.InfowCtx(initCtx, "Consumer initialized",
		"transport", a.consumer.Transport(),
		"concurrency", a.Config.Consumer.Concurrency,
		"max_attempts", a.Config.Queue.MaxReceiveCount,
		"ledger", a.redis != nil,
	)
}

func (a *App) initHTTPServer(ctx context.Context) {
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewQueueChecker("queue", a.Queue, a.Config.Queue.URL))
	if a.redis != nil {
		registry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	for _, breaker := range a.breakers {
		registry.RegisterOptional(breaker)
	}

	var deadLetters admin.DeadLetterPeeker
	if a.DeadLetterQueue != nil {
		deadLetters = broker.NewDeadLetterReader(a.DeadLetterQueue, a.Config.Queue.DeadLetterURL, a.Logger)
		registry.RegisterOptional(health.NewQueueChecker("dead_letter_queue", a.DeadLetterQueue, a.Config.Queue.DeadLetterURL))
	}

	handler := admin.NewHandler(registry, deadLetters, a.Logger)
	router := admin.NewRouter(ctx, a.Config.Server, constants.ServiceName, handler, a.Logger)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

// Run polls the queue and serves the ops API until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			return a.shutdownServer()
		})
	}

	g.Go(func() error {
		err := a.poller.Consume(gCtx, func(bCtx context.Context, records []ingress.Record) []string {
			return a.consumer.HandleBatch(bCtx, records).Failures
		})
		if err != nil && gCtx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}

func (a *App) shutdownServer() error {
	if a.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down herald")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
