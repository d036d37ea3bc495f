package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"herald/internal/constants"
	"herald/internal/envelope"
	"herald/internal/logger"
	"herald/pkg/models"
)

// DeadLetterReader lets operators inspect the dead-letter queue without
// consuming it.
type DeadLetterReader struct {
	client QueueAPI
	url    string
	logger logger.Logger
}

func NewDeadLetterReader(client QueueAPI, url string, log logger.Logger) *DeadLetterReader {
	return &DeadLetterReader{client: client, url: url, logger: log}
}

// Peek receives up to limit records and immediately makes them visible
// again. Each peek increments the records' receive count on the DLQ.
func (r *DeadLetterReader) Peek(ctx context.Context, limit int) (models.DeadLetterList, error) {
	if limit <= 0 {
		limit = constants.DefaultDeadLetterLimit
	}
	if limit > constants.MaxDeadLetterLimit {
		limit = constants.MaxDeadLetterLimit
	}

	out, err := r.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(r.url),
		MaxNumberOfMessages: int32(limit),
		AttributeNames:      []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	if err != nil {
		return models.DeadLetterList{}, fmt.Errorf("failed to receive from dead-letter queue: %w", err)
	}

	list := models.DeadLetterList{Entries: make([]models.DeadLetterEntry, 0, len(out.Messages))}
	for _, m := range out.Messages {
		list.Entries = append(list.Entries, toEntry(m))

		_, err := r.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(r.url),
			ReceiptHandle:     m.ReceiptHandle,
			VisibilityTimeout: 0,
		})
		if err != nil {
			r.logger.WarnwCtx(ctx, "Failed to release peeked dead letter",
				"message_id", aws.ToString(m.MessageId),
				"error", err,
			)
		}
	}
	list.Count = len(list.Entries)

	attrs, err := r.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(r.url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err == nil {
		list.Available, _ = strconv.Atoi(attrs.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	}

	return list, nil
}

func toEntry(m types.Message) models.DeadLetterEntry {
	entry := models.DeadLetterEntry{
		MessageID: aws.ToString(m.MessageId),
		Body:      aws.ToString(m.Body),
	}
	// The receive that produced this peek is not counted.
	if n, err := strconv.Atoi(m.Attributes[constants.AttrApproximateReceiveCount]); err == nil && n > 1 {
		entry.ReceiveCount = n - 1
	}
	if ms, err := strconv.ParseInt(m.Attributes[constants.AttrSentTimestamp], 10, 64); err == nil {
		entry.SentAt = time.UnixMilli(ms).UTC()
	}
	if ev, err := envelope.DecodeQueueMessage(entry.Body, m.Attributes); err == nil {
		entry.Sender = &models.Sender{Name: ev.SenderName(), Email: ev.SenderEmail()}
	}
	return entry
}
