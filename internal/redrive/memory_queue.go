package redrive

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"herald/internal/constants"
	"herald/internal/dedup"
)

const (
	defaultVisibilityTimeout = 30 * time.Second
	maxBatchSize             = 10
)

type queuedMessage struct {
	id            string
	body          string
	groupID       string
	dedupID       string
	messageAttrs  map[string]types.MessageAttributeValue
	seq           int64
	sentAt        time.Time
	firstReceived time.Time
	receiveCount  int
	receipt       string
	visibleAt     time.Time
	inFlight      bool
}

// MemoryQueue simulates a FIFO queue with a redrive policy. It implements the
// subset of the SQS client the adapters, the poller and the producer use, so
// the whole pipeline can run without AWS.
//
// Each message moves Available -> InFlight on receive, InFlight -> deleted on
// a DeleteMessage with its current receipt, and back to Available when its
// visibility timeout lapses. A message whose receive count already reached
// the policy limit is moved to the dead-letter queue instead of being
// received again.
type MemoryQueue struct {
	mu         sync.Mutex
	messages   []*queuedMessage
	dedup      map[string]dedupEntry
	seq        int64
	policy     Policy
	deadLetter *MemoryQueue
	visibility time.Duration
	now        func() time.Time
	notify     chan struct{}
}

type dedupEntry struct {
	messageID string
	sentAt    time.Time
}

type QueueOption func(*MemoryQueue)

// WithDeadLetterQueue sets the redrive target. A queue without one never
// redrives.
func WithDeadLetterQueue(dlq *MemoryQueue) QueueOption {
	return func(q *MemoryQueue) { q.deadLetter = dlq }
}

func WithVisibilityTimeout(d time.Duration) QueueOption {
	return func(q *MemoryQueue) { q.visibility = d }
}

func WithClock(now func() time.Time) QueueOption {
	return func(q *MemoryQueue) { q.now = now }
}

func NewMemoryQueue(policy Policy, opts ...QueueOption) *MemoryQueue {
	q := &MemoryQueue{
		dedup:      make(map[string]dedupEntry),
		policy:     policy,
		visibility: defaultVisibilityTimeout,
		now:        time.Now,
		notify:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SendMessage enqueues a message. Messages with a deduplication id seen in
// the last five minutes are accepted but not enqueued again. Without an
// explicit id the sha256 of the body is used.
func (q *MemoryQueue) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if in == nil || aws.ToString(in.MessageBody) == "" {
		return nil, fmt.Errorf("send message: message body is required")
	}
	if aws.ToString(in.MessageGroupId) == "" {
		return nil, fmt.Errorf("send message: MessageGroupId is required for FIFO queues")
	}

	body := aws.ToString(in.MessageBody)
	dedupID := aws.ToString(in.MessageDeduplicationId)
	if dedupID == "" {
		dedupID = dedup.ContentHash(body)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if e, ok := q.dedup[dedupID]; ok && now.Sub(e.sentAt) < constants.FIFODedupWindow {
		return &sqs.SendMessageOutput{MessageId: aws.String(e.messageID), MD5OfMessageBody: aws.String(md5Hex(body))}, nil
	}

	msg := &queuedMessage{
		id:           uuid.NewString(),
		body:         body,
		groupID:      aws.ToString(in.MessageGroupId),
		dedupID:      dedupID,
		messageAttrs: in.MessageAttributes,
		sentAt:       now,
	}
	q.enqueueLocked(msg)
	q.dedup[dedupID] = dedupEntry{messageID: msg.id, sentAt: now}

	return &sqs.SendMessageOutput{
		MessageId:        aws.String(msg.id),
		MD5OfMessageBody: aws.String(md5Hex(body)),
		SequenceNumber:   aws.String(strconv.FormatInt(msg.seq, 10)),
	}, nil
}

// ReceiveMessage returns up to MaxNumberOfMessages visible messages, oldest
// first, skipping groups that still have a message in flight. It waits up to
// WaitTimeSeconds for messages to arrive.
func (q *MemoryQueue) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	limit := int(in.MaxNumberOfMessages)
	if limit <= 0 {
		limit = 1
	}
	if limit > maxBatchSize {
		limit = maxBatchSize
	}
	visibility := q.visibility
	if in.VisibilityTimeout > 0 {
		visibility = time.Duration(in.VisibilityTimeout) * time.Second
	}

	var deadline <-chan time.Time
	if in.WaitTimeSeconds > 0 {
		timer := time.NewTimer(time.Duration(in.WaitTimeSeconds) * time.Second)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		msgs, notify := q.receive(limit, visibility)
		if len(msgs) > 0 || deadline == nil {
			return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return &sqs.ReceiveMessageOutput{}, nil
		case <-notify:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) receive(limit int, visibility time.Duration) ([]types.Message, chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.redriveLocked(now)

	busy := make(map[string]bool)
	for _, m := range q.messages {
		if m.inFlight && now.Before(m.visibleAt) {
			busy[m.groupID] = true
		}
	}

	var out []types.Message
	for _, m := range q.messages {
		if len(out) == limit {
			break
		}
		if (m.inFlight && now.Before(m.visibleAt)) || busy[m.groupID] {
			continue
		}
		m.receiveCount++
		if m.firstReceived.IsZero() {
			m.firstReceived = now
		}
		m.inFlight = true
		m.visibleAt = now.Add(visibility)
		m.receipt = uuid.NewString()
		out = append(out, m.toSQS())
	}
	return out, q.notify
}

// redriveLocked moves visible messages whose receive count reached the
// limit to the dead-letter queue.
func (q *MemoryQueue) redriveLocked(now time.Time) {
	if q.deadLetter == nil {
		return
	}
	kept := q.messages[:0]
	for _, m := range q.messages {
		visible := !m.inFlight || !now.Before(m.visibleAt)
		if visible && m.receiveCount > 0 && q.policy.Exhausted(m.receiveCount) {
			q.deadLetter.acceptRedrive(m)
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(q.messages); i++ {
		q.messages[i] = nil
	}
	q.messages = kept
}

func (q *MemoryQueue) acceptRedrive(m *queuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	moved := &queuedMessage{
		id:           m.id,
		body:         m.body,
		groupID:      m.groupID,
		dedupID:      m.dedupID,
		messageAttrs: m.messageAttrs,
		sentAt:       m.sentAt,
		receiveCount: m.receiveCount,
	}
	q.enqueueLocked(moved)
}

func (q *MemoryQueue) enqueueLocked(m *queuedMessage) {
	q.seq++
	m.seq = q.seq
	q.messages = append(q.messages, m)
	close(q.notify)
	q.notify = make(chan struct{})
}

// DeleteMessage acknowledges a message. Only the receipt handle of the
// current, unexpired delivery is accepted.
func (q *MemoryQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	handle := aws.ToString(in.ReceiptHandle)

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i, m := range q.messages {
		if m.receipt != handle || handle == "" {
			continue
		}
		if !m.inFlight || !now.Before(m.visibleAt) {
			break
		}
		q.messages = append(q.messages[:i], q.messages[i+1:]...)
		return &sqs.DeleteMessageOutput{}, nil
	}
	return nil, &types.ReceiptHandleIsInvalid{Message: aws.String("receipt handle is stale or unknown")}
}

// ChangeMessageVisibility resets the visibility timeout of an in-flight
// message. A timeout of zero makes it visible again immediately.
func (q *MemoryQueue) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	handle := aws.ToString(in.ReceiptHandle)

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, m := range q.messages {
		if handle == "" || m.receipt != handle || !m.inFlight || !now.Before(m.visibleAt) {
			continue
		}
		if in.VisibilityTimeout <= 0 {
			m.inFlight = false
			m.receipt = ""
		} else {
			m.visibleAt = now.Add(time.Duration(in.VisibilityTimeout) * time.Second)
		}
		return &sqs.ChangeMessageVisibilityOutput{}, nil
	}
	return nil, &types.ReceiptHandleIsInvalid{Message: aws.String("receipt handle is stale or unknown")}
}

// GetQueueAttributes reports approximate message counts.
func (q *MemoryQueue) GetQueueAttributes(_ context.Context, _ *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	available, inFlight := q.Counts()
	return &sqs.GetQueueAttributesOutput{Attributes: map[string]string{
		string(types.QueueAttributeNameApproximateNumberOfMessages):           strconv.Itoa(available),
		string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible): strconv.Itoa(inFlight),
	}}, nil
}

// ExpireVisibility makes every in-flight message visible again, as if the
// visibility timeout had lapsed.
func (q *MemoryQueue) ExpireVisibility() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.inFlight {
			m.inFlight = false
			m.receipt = ""
		}
	}
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *MemoryQueue) Counts() (available, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for _, m := range q.messages {
		if m.inFlight && now.Before(m.visibleAt) {
			inFlight++
		} else {
			available++
		}
	}
	return available, inFlight
}

// Len counts messages that are neither deleted nor redriven.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Bodies returns the bodies of all messages in send order.
func (q *MemoryQueue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	msgs := make([]*queuedMessage, len(q.messages))
	copy(msgs, q.messages)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].seq < msgs[j].seq })
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.body
	}
	return out
}

func (m *queuedMessage) toSQS() types.Message {
	attrs := map[string]string{
		constants.AttrApproximateReceiveCount:          strconv.Itoa(m.receiveCount),
		constants.AttrSentTimestamp:                    strconv.FormatInt(m.sentAt.UnixMilli(), 10),
		constants.AttrApproximateFirstReceiveTimestamp: strconv.FormatInt(m.firstReceived.UnixMilli(), 10),
		constants.AttrMessageGroupID:                   m.groupID,
		constants.AttrMessageDeduplicationID:           m.dedupID,
	}
	var msgAttrs map[string]types.MessageAttributeValue
	if len(m.messageAttrs) > 0 {
		msgAttrs = make(map[string]types.MessageAttributeValue, len(m.messageAttrs))
		for k, v := range m.messageAttrs {
			msgAttrs[k] = v
		}
	}
	return types.Message{
		MessageId:         aws.String(m.id),
		ReceiptHandle:     aws.String(m.receipt),
		Body:              aws.String(m.body),
		MD5OfBody:         aws.String(md5Hex(m.body)),
		Attributes:        attrs,
		MessageAttributes: msgAttrs,
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
