package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.opentelemetry.io/otel/trace"

	"herald/internal/config"
	"herald/internal/constants"
	"herald/internal/dedup"
	"herald/internal/envelope"
	"herald/internal/logger"
	"herald/pkg/tracing"
)

// SQSProducer enqueues contact messages on the FIFO queue.
type SQSProducer struct {
	client  QueueAPI
	url     string
	groupID string
	logger  logger.Logger
}

func NewSQSProducer(client QueueAPI, cfg config.QueueConfig, log logger.Logger) *SQSProducer {
	groupID := cfg.MessageGroupID
	if groupID == "" {
		groupID = constants.DefaultMessageGroupID
	}
	return &SQSProducer{client: client, url: cfg.URL, groupID: groupID, logger: log}
}

// Publish sends msg and returns the queue's message id. Identical bodies
// sent within the deduplication window collapse into one record.
func (p *SQSProducer) Publish(ctx context.Context, msg envelope.ContactMessage) (string, error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "sqs.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(p.url),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(p.groupID),
		MessageDeduplicationId: aws.String(dedup.ContentHash(string(body))),
		MessageAttributes:      tracing.InjectSQSAttributes(ctx, nil),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	id := aws.ToString(out.MessageId)
	p.logger.InfowCtx(ctx, "Message enqueued",
		"message_id", id,
		"message_group_id", p.groupID,
	)
	return id, nil
}
