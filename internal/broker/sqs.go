package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cenkalti/backoff/v4"

	"herald/internal/config"
	"herald/internal/ingress"
	"herald/internal/logger"
	"herald/pkg/logging"
	"herald/pkg/metrics"
	"herald/pkg/retry"
)

const maxReceiveBatch = 10

// NewSQSClient builds an SQS client for the configured region. A custom
// endpoint (LocalStack, ElasticMQ) overrides the resolved one.
func NewSQSClient(ctx context.Context, cfg config.QueueConfig) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// SQSConsumer long-polls a queue and hands each batch to a handler.
type SQSConsumer struct {
	client      QueueAPI
	cfg         config.QueueConfig
	logger      logger.Logger
	serviceName string
}

func NewSQSConsumer(client QueueAPI, cfg config.QueueConfig, log logger.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:      client,
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}
}

func (c *SQSConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume polls until ctx is canceled. Each batch runs with a deadline equal
// to the visibility timeout and is allowed to finish after ctx is canceled,
// so records are not abandoned mid-delivery on shutdown.
func (c *SQSConsumer) Consume(ctx context.Context, handler BatchHandler) error {
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started polling",
		"queue_url", c.cfg.URL,
		"wait_time_seconds", c.cfg.WaitTimeSeconds,
		"max_messages", c.batchSize(),
	)

	b := retry.NewBackOff(ctx, retry.Policy{
		InitialInterval: c.cfg.Poll.InitialInterval,
		MaxInterval:     c.cfg.Poll.MaxInterval,
		Multiplier:      c.cfg.Poll.Multiplier,
	})

	for {
		if ctx.Err() != nil {
			c.logger.InfowCtx(consumeCtx, "Stopped polling", "reason", "context canceled")
			return ctx.Err()
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.cfg.URL),
			MaxNumberOfMessages:   c.batchSize(),
			WaitTimeSeconds:       c.cfg.WaitTimeSeconds,
			VisibilityTimeout:     int32(c.visibility().Seconds()),
			AttributeNames:        []types.QueueAttributeName{types.QueueAttributeNameAll},
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			metrics.PollErrorsTotal.Inc()
			delay := b.NextBackOff()
			if delay == backoff.Stop {
				return ctx.Err()
			}
			c.logger.ErrorwCtx(consumeCtx, "Error receiving messages",
				"error", err,
				"next_attempt_in", delay,
			)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		b.Reset()

		if len(out.Messages) == 0 {
			continue
		}

		records := make([]ingress.Record, len(out.Messages))
		for i, m := range out.Messages {
			records[i] = ingress.FromSQSMessage(m)
		}

		batchCtx, cancel := context.WithTimeout(context.WithoutCancel(consumeCtx), c.visibility())
		failed := handler(batchCtx, records)
		c.release(batchCtx, records, failed)
		cancel()
	}
}

// release shortens the visibility timeout of failed records to the retry
// delay so they are redelivered without waiting out the full timeout. A
// stale receipt only means the record is already visible again.
func (c *SQSConsumer) release(ctx context.Context, records []ingress.Record, failed []string) {
	if !c.cfg.ReleaseFailures || len(failed) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(failed))
	for _, id := range failed {
		ids[id] = struct{}{}
	}

	delay := int32(c.cfg.RetryDelay / time.Second)
	for _, rec := range records {
		if _, ok := ids[rec.ID]; !ok || rec.ReceiptHandle == "" {
			continue
		}
		_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(c.cfg.URL),
			ReceiptHandle:     aws.String(rec.ReceiptHandle),
			VisibilityTimeout: delay,
		})
		if err != nil {
			c.logger.WarnwCtx(logging.WithMessageID(ctx, rec.ID), "Failed to release record for redelivery",
				"error", err,
			)
			continue
		}
		c.logger.DebugwCtx(logging.WithMessageID(ctx, rec.ID), "Record released for redelivery",
			"retry_delay", c.cfg.RetryDelay,
		)
	}
}

func (c *SQSConsumer) batchSize() int32 {
	if c.cfg.MaxMessages <= 0 || c.cfg.MaxMessages > maxReceiveBatch {
		return maxReceiveBatch
	}
	return c.cfg.MaxMessages
}

func (c *SQSConsumer) visibility() time.Duration {
	if c.cfg.VisibilityTimeout <= 0 {
		return 30 * time.Second
	}
	return c.cfg.VisibilityTimeout
}
