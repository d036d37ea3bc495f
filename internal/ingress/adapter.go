package ingress

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"herald/internal/constants"
	"herald/internal/envelope"
	"herald/pkg/errors"
)

// Adapter is the transport capability the batch consumer works against.
type Adapter interface {
	Name() string
	Decode(rec Record) (envelope.NotificationEvent, error)
	Acknowledge(ctx context.Context, rec Record) error
}

// MessageDeleter is the subset of the SQS client used to acknowledge.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSAdapter struct {
	client   MessageDeleter
	queueURL string
}

func NewSQSAdapter(client MessageDeleter, queueURL string) *SQSAdapter {
	return &SQSAdapter{client: client, queueURL: queueURL}
}

func (a *SQSAdapter) Name() string { return constants.TransportSQS }

func (a *SQSAdapter) Decode(rec Record) (envelope.NotificationEvent, error) {
	return envelope.DecodeQueueMessage(rec.Body, rec.Attributes)
}

// Acknowledge deletes the record using its receipt handle. A handle from an
// earlier delivery is rejected by the queue and reported as ErrAcknowledge.
func (a *SQSAdapter) Acknowledge(ctx context.Context, rec Record) error {
	if rec.ReceiptHandle == "" {
		return errors.ErrAcknowledge.
			WithMessage("record has no receipt handle").
			WithDetail("message_id", rec.ID)
	}

	_, err := a.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(a.queueURL),
		ReceiptHandle: aws.String(rec.ReceiptHandle),
	})
	if err != nil {
		return errors.Wrap(fmt.Errorf("delete message %s: %w", rec.ID, err), errors.ErrAcknowledge.WithDetail("message_id", rec.ID))
	}
	return nil
}

// SNSAdapter handles push records. Delivery to the function is the
// acknowledgment, so Acknowledge has nothing to do.
type SNSAdapter struct{}

func NewSNSAdapter() *SNSAdapter { return &SNSAdapter{} }

func (a *SNSAdapter) Name() string { return constants.TransportSNS }

func (a *SNSAdapter) Decode(rec Record) (envelope.NotificationEvent, error) {
	return envelope.DecodeNotification(rec.Body, rec.Attributes[constants.AttrTimestamp])
}

func (a *SNSAdapter) Acknowledge(context.Context, Record) error { return nil }
