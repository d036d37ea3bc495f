package bootstrap

import (
	"context"
	"fmt"
	"time"

	"herald/internal/broker"
	"herald/internal/config"
	"herald/internal/logger"
	"herald/internal/redrive"
)

type Base struct {
	Config          *config.Config
	Logger          logger.Logger
	Queue           broker.QueueAPI
	DeadLetterQueue broker.QueueAPI
	DeadLetterSink  redrive.Sink

	closers []func() error
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitQueue connects to the queue pair. With the "memory" endpoint both
// queues are simulated in process and share the configured redrive policy.
func (b *Base) InitQueue(ctx context.Context) error {
	if b.Config.Queue.InMemory() {
		policy := redrive.NewPolicy(b.Config.Queue.MaxReceiveCount, nil)
		visibility := redrive.WithVisibilityTimeout(b.Config.Queue.VisibilityTimeout)
		dlq := redrive.NewMemoryQueue(policy, visibility)
		b.Queue = redrive.NewMemoryQueue(policy, visibility, redrive.WithDeadLetterQueue(dlq))
		b.DeadLetterQueue = dlq
		b.Logger.Warn("Using in-memory queue, messages are lost on exit")
		return nil
	}

	client, err := broker.NewSQSClient(ctx, b.Config.Queue)
	if err != nil {
		return fmt.Errorf("failed to create SQS client: %w", err)
	}
	b.Queue = client
	if b.Config.Queue.DeadLetterURL != "" {
		b.DeadLetterQueue = client
	}
	return nil
}

func (b *Base) InitDeadLetterSink() {
	sink, closer := broker.NewDeadLetterSink(b.Config.Broker, b.Logger)
	b.DeadLetterSink = sink
	b.closers = append(b.closers, closer)
	if sink != nil {
		b.Logger.Infow("Dead-letter notices enabled",
			"topic", b.Config.Broker.Kafka.DeadLetterTopic,
		)
	}
}

// Policy returns the redrive policy of the configured queue pair.
func (b *Base) Policy() redrive.Policy {
	return redrive.NewPolicy(b.Config.Queue.MaxReceiveCount, b.DeadLetterSink)
}

func (b *Base) ShutdownBroker() []error {
	var errs []error
	for _, closer := range b.closers {
		if err := closer(); err != nil {
			errs = append(errs, fmt.Errorf("broker close error: %w", err))
		}
	}
	b.closers = nil
	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")
	start := time.Now()

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownBroker()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Infow("Application exited successfully", "duration", time.Since(start))
	return nil
}
