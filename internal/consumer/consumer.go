package consumer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"herald/internal/ingress"
	"herald/internal/logger"
	"herald/internal/redrive"
	"herald/internal/webhook"
	"herald/pkg/errors"
	"herald/pkg/logging"
	"herald/pkg/metrics"
	"herald/pkg/tracing"
)

const defaultConcurrency = 10

// Ledger is the optional record of completed deliveries.
type Ledger interface {
	Delivered(ctx context.Context, messageID string) bool
	MarkDelivered(ctx context.Context, messageID string)
}

// BatchResult summarizes one batch. Failures lists, in input order, the ids
// of records that were not acknowledged and must be redelivered.
// FatalFailures counts those of them that will fail identically on every
// redelivery (malformed envelopes, panics).
type BatchResult struct {
	Failures      []string
	FatalFailures int
	Delivered     int
	Duplicates   int
	AckFailures  int
	DeadLettered int
}

type outcome struct {
	failed       bool
	fatal        bool
	duplicate    bool
	ackFailed    bool
	deadLettered bool
}

// Consumer processes delivery batches: decode, deliver, then acknowledge,
// with every record isolated from the others.
type Consumer struct {
	adapter     ingress.Adapter
	sender      webhook.Sender
	policy      redrive.Policy
	ledger      Ledger
	logger      logger.Logger
	concurrency int
}

type Option func(*Consumer)

func WithLedger(l Ledger) Option {
	return func(c *Consumer) { c.ledger = l }
}

func WithConcurrency(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func New(adapter ingress.Adapter, sender webhook.Sender, policy redrive.Policy, log logger.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		adapter:     adapter,
		sender:      sender,
		policy:      policy,
		logger:      log,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Transport() string {
	return c.adapter.Name()
}

// HandleBatch never returns an error: per-record failures are reported in
// the result so the transport can redeliver exactly those records.
func (c *Consumer) HandleBatch(ctx context.Context, records []ingress.Record) BatchResult {
	metrics.ObserveBatch(c.adapter.Name(), len(records))

	outcomes := make([]outcome, len(records))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			outcomes[i] = c.handleRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	var result BatchResult
	for i, o := range outcomes {
		switch {
		case o.failed:
			result.Failures = append(result.Failures, records[i].ID)
			if o.fatal {
				result.FatalFailures++
			}
		case o.duplicate:
			result.Duplicates++
		default:
			result.Delivered++
		}
		if o.ackFailed {
			result.AckFailures++
		}
		if o.deadLettered {
			result.DeadLettered++
		}
	}

	c.logger.InfowCtx(ctx, "Batch processed",
		"transport", c.adapter.Name(),
		"records", len(records),
		"delivered", result.Delivered,
		"duplicates", result.Duplicates,
		"failed", len(result.Failures),
		"fatal", result.FatalFailures,
		"ack_failures", result.AckFailures,
	)
	return result
}

func (c *Consumer) handleRecord(ctx context.Context, rec ingress.Record) (out outcome) {
	ctx, span := tracing.StartSpanFromAttributes(ctx, "consumer.handle_record", rec.MessageAttributes)
	defer span.End()

	ctx = logging.WithMessageID(ctx, rec.ID)
	ctx = logging.WithTransport(ctx, c.adapter.Name())
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}

	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			span.SetStatus(codes.Error, "panic")
			out = c.fail(ctx, rec, "panic", err)
		}
	}()

	ev, err := c.adapter.Decode(rec)
	if err != nil {
		reason := decodeReason(err)
		metrics.IncDecode(c.adapter.Name(), reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return c.fail(ctx, rec, reason, err)
	}
	metrics.IncDecode(c.adapter.Name(), "success")

	if c.ledger != nil && c.ledger.Delivered(ctx, rec.ID) {
		metrics.DuplicateDeliveriesSkipped.Inc()
		c.logger.InfowCtx(ctx, "Record already delivered, acknowledging without delivery",
			"attempt", rec.AttemptCount(),
		)
		return outcome{duplicate: true, ackFailed: !c.acknowledge(ctx, rec)}
	}

	if err := c.sender.Deliver(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return c.fail(ctx, rec, deliveryReason(err), err)
	}

	if c.ledger != nil {
		c.ledger.MarkDelivered(ctx, rec.ID)
	}
	return outcome{ackFailed: !c.acknowledge(ctx, rec)}
}

// acknowledge reports whether the record was acknowledged. A failed
// acknowledge means the receipt is stale; the record will be redelivered and
// filtered by the ledger, so it is not reported as a failure.
func (c *Consumer) acknowledge(ctx context.Context, rec ingress.Record) bool {
	if err := c.adapter.Acknowledge(ctx, rec); err != nil {
		metrics.IncAcknowledge(c.adapter.Name(), "error")
		c.logger.WarnwCtx(ctx, "Failed to acknowledge delivered record",
			"attempt", rec.AttemptCount(),
			"error", err,
		)
		return false
	}
	metrics.IncAcknowledge(c.adapter.Name(), "success")
	c.logger.DebugwCtx(ctx, "Record acknowledged", "attempt", rec.AttemptCount())
	return true
}

func (c *Consumer) fail(ctx context.Context, rec ingress.Record, reason string, err error) outcome {
	attempt := rec.AttemptCount()
	retryable := errors.IsRetryable(err)
	metrics.IncRecordFailure(c.adapter.Name(), failureClass(retryable))

	if !c.policy.FinalAttempt(attempt) {
		c.logger.WarnwCtx(ctx, "Record failed, leaving it for redelivery",
			"reason", reason,
			"attempt", attempt,
			"retryable", retryable,
			"error", err,
		)
		return outcome{failed: true, fatal: !retryable}
	}

	metrics.IncDLQBoundary(c.adapter.Name(), reason)
	c.logger.ErrorwCtx(ctx, "Record failed on final attempt, queue will dead-letter it",
		"reason", reason,
		"attempt", attempt,
		"retryable", retryable,
		"error", err,
	)

	dl := redrive.DeadLetter{
		MessageID: rec.ID,
		Body:      rec.Body,
		Attempts:  attempt,
		Reason:    reason,
		Source:    rec.Source,
		FailedAt:  time.Now().UTC(),
	}
	if nerr := c.policy.Notify(ctx, dl); nerr != nil {
		c.logger.WarnwCtx(ctx, "Failed to publish dead-letter notice", "error", nerr)
	}
	return outcome{failed: true, fatal: !retryable, deadLettered: true}
}

func failureClass(retryable bool) string {
	if retryable {
		return "retryable"
	}
	return "fatal"
}

func decodeReason(err error) string {
	switch {
	case errors.IsMalformed(err):
		return "malformed_envelope"
	case errors.IsMissingTimestamp(err):
		return "missing_timestamp"
	default:
		return "decode_error"
	}
}

func deliveryReason(err error) string {
	if webhook.IsNetwork(err) {
		return "network_error"
	}
	if _, ok := webhook.IsRemote(err); ok {
		return "remote_error"
	}
	return "delivery_error"
}
