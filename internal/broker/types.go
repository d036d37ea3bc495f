package broker

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"herald/internal/envelope"
	"herald/internal/ingress"
)

// QueueAPI is the subset of the SQS client the pipeline uses. Both
// *sqs.Client and redrive.MemoryQueue satisfy it.
type QueueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type Producer interface {
	Publish(ctx context.Context, msg envelope.ContactMessage) (string, error)
}

type Consumer interface {
	Consume(ctx context.Context, handler BatchHandler) error
	SetServiceName(name string)
}

// BatchHandler processes one received batch. It owns acknowledging the
// records it handled and returns the ids of records that failed; anything
// left unacknowledged is redelivered.
type BatchHandler func(ctx context.Context, records []ingress.Record) (failed []string)
