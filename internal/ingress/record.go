package ingress

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"herald/internal/constants"
)

// Record is one transport record as handed to the batch consumer. The
// receipt handle is valid for the current delivery only.
type Record struct {
	ID                string
	Body              string
	ReceiptHandle     string
	Attributes        map[string]string
	MessageAttributes map[string]string
	Source            string
}

// AttemptCount is the queue's receive count for this record. Records without
// the attribute are on their first attempt.
func (r Record) AttemptCount() int {
	n, err := strconv.Atoi(r.Attributes[constants.AttrApproximateReceiveCount])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// FirstEnqueuedAt reports when the producer sent the record.
func (r Record) FirstEnqueuedAt() (time.Time, bool) {
	ms, err := strconv.ParseInt(r.Attributes[constants.AttrSentTimestamp], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// FromSQSEventMessage converts a record of a Lambda SQS trigger.
func FromSQSEventMessage(m events.SQSMessage) Record {
	attrs := make(map[string]string, len(m.MessageAttributes))
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			attrs[k] = *v.StringValue
		}
	}
	return Record{
		ID:                m.MessageId,
		Body:              m.Body,
		ReceiptHandle:     m.ReceiptHandle,
		Attributes:        copyAttributes(m.Attributes),
		MessageAttributes: attrs,
		Source:            constants.TransportSQS,
	}
}

// FromSQSMessage converts a message returned by ReceiveMessage.
func FromSQSMessage(m types.Message) Record {
	attrs := make(map[string]string, len(m.MessageAttributes))
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			attrs[k] = *v.StringValue
		}
	}
	return Record{
		ID:                aws.ToString(m.MessageId),
		Body:              aws.ToString(m.Body),
		ReceiptHandle:     aws.ToString(m.ReceiptHandle),
		Attributes:        copyAttributes(m.Attributes),
		MessageAttributes: attrs,
		Source:            constants.TransportSQS,
	}
}

// FromSNSRecord converts a pub/sub push record. There is no receipt handle
// and no receive count.
func FromSNSRecord(r events.SNSEventRecord) Record {
	attrs := make(map[string]string, len(r.SNS.MessageAttributes))
	for k, v := range r.SNS.MessageAttributes {
		if m, ok := v.(map[string]interface{}); ok {
			if s, ok := m["Value"].(string); ok {
				attrs[k] = s
			}
		}
	}
	recAttrs := map[string]string{}
	if !r.SNS.Timestamp.IsZero() {
		recAttrs[constants.AttrTimestamp] = r.SNS.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return Record{
		ID:                r.SNS.MessageID,
		Body:              r.SNS.Message,
		Attributes:        recAttrs,
		MessageAttributes: attrs,
		Source:            constants.TransportSNS,
	}
}

func (r Record) String() string {
	return fmt.Sprintf("%s/%s", r.Source, r.ID)
}

func copyAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
