package dedup

import (
	"context"
	"time"

	"herald/internal/constants"
	"herald/internal/logger"
	"herald/pkg/metrics"
	"herald/pkg/tracing"
)

// Ledger remembers which records were delivered so a redelivery after a lost
// acknowledge does not reach the endpoint twice. Redis failures are logged
// and treated as "not delivered": the pipeline stays at-least-once.
type Ledger struct {
	repo   Repository
	ttl    time.Duration
	logger logger.Logger
}

func NewLedger(repo Repository, ttlSeconds int, log logger.Logger) *Ledger {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultTTLSeconds
	}
	return &Ledger{
		repo:   repo,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: log,
	}
}

func key(messageID string) string {
	return constants.CacheKeyPrefixDelivered + messageID
}

func (l *Ledger) Delivered(ctx context.Context, messageID string) bool {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "ledger.delivered")
	defer span.End()

	start := time.Now()
	found, err := l.repo.Exists(ctx, key(messageID))
	if err != nil {
		metrics.ObserveLedger("lookup", "error", time.Since(start))
		l.logger.WarnwCtx(ctx, "Delivery ledger lookup failed, delivering anyway",
			"message_id", messageID,
			"error", err,
		)
		return false
	}

	status := "miss"
	if found {
		status = "hit"
	}
	metrics.ObserveLedger("lookup", status, time.Since(start))
	return found
}

func (l *Ledger) MarkDelivered(ctx context.Context, messageID string) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "ledger.mark")
	defer span.End()

	start := time.Now()
	_, err := l.repo.SetNX(ctx, key(messageID), time.Now().Unix(), l.ttl)
	if err != nil {
		metrics.ObserveLedger("mark", "error", time.Since(start))
		l.logger.WarnwCtx(ctx, "Failed to record delivery in ledger",
			"message_id", messageID,
			"error", err,
		)
		return
	}
	metrics.ObserveLedger("mark", "success", time.Since(start))
}
