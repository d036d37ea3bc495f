package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/config"
	"herald/internal/envelope"
	"herald/internal/ingress"
	"herald/internal/logger"
	"herald/internal/redrive"
	"herald/internal/webhook"
	apperrors "herald/pkg/errors"
	"herald/pkg/metrics"
)

const queueURL = "https://sqs.local/contact.fifo"

// countingAdapter records every Acknowledge call made through it.
type countingAdapter struct {
	ingress.Adapter
	mu    sync.Mutex
	acked []string
}

func (a *countingAdapter) Acknowledge(ctx context.Context, rec ingress.Record) error {
	a.mu.Lock()
	a.acked = append(a.acked, rec.ID)
	a.mu.Unlock()
	return a.Adapter.Acknowledge(ctx, rec)
}

func (a *countingAdapter) Acked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.acked...)
}

type fakeSender struct {
	mu        sync.Mutex
	delivered []envelope.NotificationEvent
	failFor   map[string]error
	panicFor  string
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	delay     time.Duration
}

func (s *fakeSender) Deliver(_ context.Context, ev envelope.NotificationEvent) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if ev.SenderName() == s.panicFor {
		panic("sender exploded")
	}
	if err := s.failFor[ev.SenderName()]; err != nil {
		return err
	}
	s.mu.Lock()
	s.delivered = append(s.delivered, ev)
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) Delivered() []envelope.NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]envelope.NotificationEvent(nil), s.delivered...)
}

type harness struct {
	queue   *redrive.MemoryQueue
	dlq     *redrive.MemoryQueue
	sink    *redrive.MemorySink
	adapter *countingAdapter
	policy  redrive.Policy
}

func newHarness() *harness {
	sink := redrive.NewMemorySink()
	policy := redrive.NewPolicy(3, sink)
	dlq := redrive.NewMemoryQueue(redrive.Policy{})
	q := redrive.NewMemoryQueue(policy, redrive.WithDeadLetterQueue(dlq))
	return &harness{
		queue:   q,
		dlq:     dlq,
		sink:    sink,
		adapter: &countingAdapter{Adapter: ingress.NewSQSAdapter(q, queueURL)},
		policy:  policy,
	}
}

func contactBody(name, email, message string) string {
	return fmt.Sprintf(`{"name":%q,"email":%q,"message":%q}`, name, email, message)
}

func (h *harness) send(t *testing.T, body string) {
	t.Helper()
	_, err := h.queue.SendMessage(context.Background(), &sqs.SendMessageInput{
		QueueUrl:       aws.String(queueURL),
		MessageBody:    aws.String(body),
		MessageGroupId: aws.String("contact"),
	})
	require.NoError(t, err)
}

func (h *harness) receive(t *testing.T) []ingress.Record {
	t.Helper()
	out, err := h.queue.ReceiveMessage(context.Background(), &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: 10,
	})
	require.NoError(t, err)
	records := make([]ingress.Record, len(out.Messages))
	for i, m := range out.Messages {
		records[i] = ingress.FromSQSMessage(m)
	}
	return records
}

func TestHandleBatch_DeliversAndAcknowledges(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{}
	c := New(h.adapter, sender, h.policy, logger.NopLogger())

	h.send(t, contactBody("Ada", "ada@x.com", "Hi <b>there</b> & bye"))
	records := h.receive(t)

	result := c.HandleBatch(context.Background(), records)

	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, result.Delivered)
	delivered := sender.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "Ada", delivered[0].SenderName())
	assert.Equal(t, "ada@x.com", delivered[0].SenderEmail())
	assert.Equal(t, "Hi <b>there</b> & bye", delivered[0].Body())
	assert.Equal(t, []string{records[0].ID}, h.adapter.Acked())
	assert.Equal(t, 0, h.queue.Len())
}

func TestHandleBatch_MissingEmailIsNeverAcknowledged(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{}
	c := New(h.adapter, sender, h.policy, logger.NopLogger())

	h.send(t, `{"name":"Ada","message":"Hi"}`)
	records := h.receive(t)
	require.Len(t, records, 1)

	_, err := h.adapter.Decode(records[0])
	assert.True(t, apperrors.IsMalformed(err))

	result := c.HandleBatch(context.Background(), records)
	assert.Equal(t, []string{records[0].ID}, result.Failures)
	assert.Empty(t, sender.Delivered())
	assert.Empty(t, h.adapter.Acked())
	assert.Equal(t, 1, h.queue.Len())
}

func TestHandleBatch_IsolatesFailingRecord(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{failFor: map[string]error{
		"Carol": &webhook.DeliveryError{Kind: webhook.KindRemote, StatusCode: http.StatusInternalServerError},
	}}
	c := New(h.adapter, sender, h.policy, logger.NopLogger(), WithConcurrency(3))

	names := []string{"Alice", "Bob", "Carol", "Dave", "Erin"}
	for _, n := range names {
		h.send(t, contactBody(n, n+"@x.com", "hello from "+n))
	}
	records := h.receive(t)
	require.Len(t, records, len(names))

	result := c.HandleBatch(context.Background(), records)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, records[2].ID, result.Failures[0])
	assert.Equal(t, len(names)-1, result.Delivered)

	acked := h.adapter.Acked()
	assert.Len(t, acked, len(names)-1)
	assert.NotContains(t, acked, records[2].ID)
	assert.Equal(t, 1, h.queue.Len())
}

func TestHandleBatch_ClassifiesFailures(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{
		failFor:  map[string]error{"Bob": &webhook.DeliveryError{Kind: webhook.KindNetwork, Err: errors.New("dial tcp: connection refused")}},
		panicFor: "Carol",
	}
	c := New(h.adapter, sender, h.policy, logger.NopLogger())

	fatalBefore := testutil.ToFloat64(metrics.RecordFailuresTotal.WithLabelValues("sqs", "fatal"))
	retryableBefore := testutil.ToFloat64(metrics.RecordFailuresTotal.WithLabelValues("sqs", "retryable"))

	h.send(t, `{"name":"Ada","message":"no email"}`)
	h.send(t, contactBody("Bob", "bob@x.com", "Hi"))
	h.send(t, contactBody("Carol", "carol@x.com", "Hi"))
	h.send(t, contactBody("Dave", "dave@x.com", "Hi"))
	records := h.receive(t)
	require.Len(t, records, 4)

	result := c.HandleBatch(context.Background(), records)

	assert.Equal(t, []string{records[0].ID, records[1].ID, records[2].ID}, result.Failures)
	assert.Equal(t, 2, result.FatalFailures)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RecordFailuresTotal.WithLabelValues("sqs", "fatal"))-fatalBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordFailuresTotal.WithLabelValues("sqs", "retryable"))-retryableBefore)
}

func TestHandleBatch_NoAcknowledgeBeforeSuccessfulDelivery(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{failFor: map[string]error{"Ada": errors.New("boom")}}
	c := New(h.adapter, sender, h.policy, logger.NopLogger())

	h.send(t, contactBody("Ada", "ada@x.com", "Hi"))
	result := c.HandleBatch(context.Background(), h.receive(t))

	assert.Len(t, result.Failures, 1)
	assert.Empty(t, h.adapter.Acked())
}

func TestHandleBatch_NotRedeliveredAfterThreeFailures(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{failFor: map[string]error{"Ada": errors.New("endpoint down")}}
	c := New(h.adapter, sender, h.policy, logger.NopLogger())

	h.send(t, contactBody("Ada", "ada@x.com", "Hi"))

	var id string
	for attempt := 1; attempt <= 3; attempt++ {
		records := h.receive(t)
		require.Len(t, records, 1, "attempt %d", attempt)
		assert.Equal(t, attempt, records[0].AttemptCount())
		id = records[0].ID

		result := c.HandleBatch(context.Background(), records)
		assert.Equal(t, []string{id}, result.Failures)
		assert.Equal(t, attempt == 3, result.DeadLettered == 1)

		h.queue.ExpireVisibility()
	}

	assert.Empty(t, h.receive(t), "no fourth delivery")
	assert.Empty(t, h.adapter.Acked())
	assert.Equal(t, []string{contactBody("Ada", "ada@x.com", "Hi")}, h.dlq.Bodies())

	letters := h.sink.Letters()
	require.Len(t, letters, 1)
	assert.Equal(t, id, letters[0].MessageID)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Equal(t, "delivery_error", letters[0].Reason)
}

func TestHandleBatch_StaleReceiptIsNotReported(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{}
	c := New(h.adapter, sender, h.policy, logger.NopLogger())

	h.send(t, contactBody("Ada", "ada@x.com", "Hi"))
	records := h.receive(t)
	h.queue.ExpireVisibility()

	result := c.HandleBatch(context.Background(), records)

	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, result.AckFailures)
	assert.Len(t, sender.Delivered(), 1)
}

type setLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (l *setLedger) Delivered(_ context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[id]
}

func (l *setLedger) MarkDelivered(_ context.Context, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[id] = true
}

func TestHandleBatch_LedgerSuppressesDuplicateDelivery(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{}
	ledger := &setLedger{seen: map[string]bool{}}
	c := New(h.adapter, sender, h.policy, logger.NopLogger(), WithLedger(ledger))

	h.send(t, contactBody("Ada", "ada@x.com", "Hi"))
	first := h.receive(t)
	// Acknowledge is lost: the receipt goes stale before the delete.
	h.queue.ExpireVisibility()
	result := c.HandleBatch(context.Background(), first)
	require.Equal(t, 1, result.AckFailures)

	second := h.receive(t)
	require.Len(t, second, 1)
	result = c.HandleBatch(context.Background(), second)

	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, result.Duplicates)
	assert.Len(t, sender.Delivered(), 1)
	assert.Equal(t, 0, h.queue.Len())
}

func TestHandleBatch_RecoversPanic(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{panicFor: "Mallory"}
	c := New(h.adapter, sender, h.policy, logger.NopLogger())

	h.send(t, contactBody("Mallory", "m@x.com", "boom"))
	h.send(t, contactBody("Ada", "ada@x.com", "Hi"))
	records := h.receive(t)

	var result BatchResult
	require.NotPanics(t, func() { result = c.HandleBatch(context.Background(), records) })
	assert.Equal(t, []string{records[0].ID}, result.Failures)
	assert.Equal(t, 1, result.Delivered)
}

func TestHandleBatch_BoundedConcurrency(t *testing.T) {
	h := newHarness()
	sender := &fakeSender{delay: 20 * time.Millisecond}
	c := New(h.adapter, sender, h.policy, logger.NopLogger(), WithConcurrency(2))

	for i := 0; i < 6; i++ {
		h.send(t, contactBody(fmt.Sprintf("user%d", i), "u@x.com", "hi"))
	}
	result := c.HandleBatch(context.Background(), h.receive(t))

	assert.Equal(t, 6, result.Delivered)
	assert.LessOrEqual(t, sender.maxSeen.Load(), int32(2))
}

func TestHandleBatch_EmptyBatch(t *testing.T) {
	h := newHarness()
	c := New(h.adapter, &fakeSender{}, h.policy, logger.NopLogger())
	result := c.HandleBatch(context.Background(), nil)
	assert.Empty(t, result.Failures)
	assert.Zero(t, result.Delivered)
}

func TestHandleBatch_EndToEndWebhookBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := newHarness()
	client := webhook.NewClient(config.WebhookConfig{URL: srv.URL, Timeout: time.Second})
	c := New(h.adapter, client, h.policy, logger.NopLogger())

	rec := ingress.Record{
		ID:            "m-ada",
		Body:          `{"name":"Ada","email":"ada@x.com","message":"Hi"}`,
		ReceiptHandle: "",
		Attributes:    map[string]string{"SentTimestamp": "1700000000000", "ApproximateReceiveCount": "1"},
		Source:        "sqs",
	}
	result := c.HandleBatch(context.Background(), []ingress.Record{rec})

	assert.Empty(t, result.Failures)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Equal(t,
		`{"embeds":[{"title":"New message from Ada (ada@x.com)","description":"Hi","color":16711680,"timestamp":"2023-11-14T22:13:20.000Z"}]}`,
		bodies[0])
}
