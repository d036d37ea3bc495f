package trigger

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/config"
	"herald/internal/consumer"
	"herald/internal/ingress"
	"herald/internal/logger"
	"herald/internal/redrive"
	"herald/internal/webhook"
)

type fakeBatch struct {
	records  []ingress.Record
	failures []string
}

func (f *fakeBatch) HandleBatch(_ context.Context, records []ingress.Record) consumer.BatchResult {
	f.records = records
	return consumer.BatchResult{Failures: f.failures}
}

func TestHandleSQS_ReportsExactlyFailedRecords(t *testing.T) {
	batch := &fakeBatch{failures: []string{"m-2"}}
	h := NewHandler(batch, "herald-test", logger.NopLogger())

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: "{}", ReceiptHandle: "r-1", Attributes: map[string]string{"ApproximateReceiveCount": "1"}},
		{MessageId: "m-2", Body: "{}", ReceiptHandle: "r-2", Attributes: map[string]string{"ApproximateReceiveCount": "2"}},
	}}

	resp, err := h.HandleSQS(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m-2"}}, resp.BatchItemFailures)

	require.Len(t, batch.records, 2)
	assert.Equal(t, "r-1", batch.records[0].ReceiptHandle)
	assert.Equal(t, 2, batch.records[1].AttemptCount())
}

func TestHandleSQS_AllSucceeded(t *testing.T) {
	h := NewHandler(&fakeBatch{}, "herald-test", logger.NopLogger())

	resp, err := h.HandleSQS(context.Background(), events.SQSEvent{Records: []events.SQSMessage{{MessageId: "m-1"}}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}

func TestHandleSNS_EndToEnd(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := webhook.NewClient(config.WebhookConfig{URL: srv.URL, Timeout: time.Second, Color: 0xFF0000})
	c := consumer.New(ingress.NewSNSAdapter(), client, redrive.NewPolicy(3, nil), logger.NopLogger())
	h := NewHandler(c, "herald-test", logger.NopLogger())

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	event := events.SNSEvent{Records: []events.SNSEventRecord{{
		SNS: events.SNSEntity{
			MessageID: "n-1",
			Message:   `{"name":"Ada","email":"ada@x.io","message":"Hi"}`,
			Timestamp: ts,
		},
	}}}

	require.NoError(t, h.HandleSNS(context.Background(), event))
	require.Len(t, bodies, 1)
	assert.Equal(t,
		`{"embeds":[{"title":"New message from Ada (ada@x.io)","description":"Hi","color":16711680,"timestamp":"2024-01-01T00:00:00.000Z"}]}`,
		bodies[0])

	event.Records[0].SNS.Message = `{"name":"Ada","message":"Hi"}`
	err := h.HandleSNS(context.Background(), event)
	assert.ErrorContains(t, err, "n-1")
	assert.Len(t, bodies, 1)
}
