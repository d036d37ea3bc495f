package constants

import "time"

const (
	ServiceName = "herald"
)

const (
	TransportSQS = "sqs"
	TransportSNS = "sns"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

// Redrive contract of the provisioned queue pair.
const (
	DefaultMaxReceiveCount = 3
	DefaultMessageGroupID  = "contact"
	FIFODedupWindow        = 5 * time.Minute

	// MemoryQueueEndpoint selects the in-process queue simulation.
	MemoryQueueEndpoint = "memory"
)

const (
	CacheKeyPrefixDelivered = "delivered:"
	DefaultTTLSeconds       = 86400
)

// Outbound embed defaults.
const (
	DefaultEmbedColor = 0xFF0000
	EmbedTitleFormat  = "New message from %s (%s)"
	EmbedTimeLayout   = "2006-01-02T15:04:05.000Z"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultDeadLetterLimit = 10
	MaxDeadLetterLimit     = 10
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

// SQS system attribute names.
const (
	AttrApproximateReceiveCount          = "ApproximateReceiveCount"
	AttrSentTimestamp                    = "SentTimestamp"
	AttrApproximateFirstReceiveTimestamp = "ApproximateFirstReceiveTimestamp"
	AttrMessageDeduplicationID           = "MessageDeduplicationId"
	AttrMessageGroupID                   = "MessageGroupId"
	AttrTimestamp                        = "Timestamp"
)
