package trigger

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"herald/internal/consumer"
	"herald/internal/ingress"
	"herald/internal/logger"
	"herald/pkg/logging"
)

// BatchHandler is satisfied by *consumer.Consumer.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []ingress.Record) consumer.BatchResult
}

// Handler adapts Lambda invocations to the batch consumer.
type Handler struct {
	batch       BatchHandler
	logger      logger.Logger
	serviceName string
}

func NewHandler(batch BatchHandler, serviceName string, log logger.Logger) *Handler {
	return &Handler{batch: batch, logger: log, serviceName: serviceName}
}

// HandleSQS reports failed records as BatchItemFailures so the event source
// mapping redelivers exactly those. The invocation itself never fails.
func (h *Handler) HandleSQS(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	ctx = logging.WithServiceName(ctx, h.serviceName)

	records := make([]ingress.Record, len(event.Records))
	for i, m := range event.Records {
		records[i] = ingress.FromSQSEventMessage(m)
	}

	result := h.batch.HandleBatch(ctx, records)

	resp := events.SQSEventResponse{
		BatchItemFailures: make([]events.SQSBatchItemFailure, 0, len(result.Failures)),
	}
	for _, id := range result.Failures {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}
	return resp, nil
}

// HandleSNS fails the invocation when any record failed; asynchronous
// invocation retries it and its failure destination takes it afterwards.
func (h *Handler) HandleSNS(ctx context.Context, event events.SNSEvent) error {
	ctx = logging.WithServiceName(ctx, h.serviceName)

	records := make([]ingress.Record, len(event.Records))
	for i, r := range event.Records {
		records[i] = ingress.FromSNSRecord(r)
	}

	result := h.batch.HandleBatch(ctx, records)
	if len(result.Failures) > 0 {
		h.logger.WarnwCtx(ctx, "SNS invocation has failed records",
			"failed", result.Failures,
		)
		return fmt.Errorf("%d of %d records failed: %v", len(result.Failures), len(records), result.Failures)
	}
	return nil
}
