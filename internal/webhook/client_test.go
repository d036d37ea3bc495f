package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"herald/internal/config"
	"herald/internal/envelope"
)

type capturedRequest struct {
	method      string
	contentType string
	body        string
}

func newEndpoint(t *testing.T, status int) (*httptest.Server, chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		reqs <- capturedRequest{method: r.Method, contentType: r.Header.Get("Content-Type"), body: string(b)}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func adaEvent() envelope.NotificationEvent {
	return envelope.NewNotificationEvent("Ada", "ada@x.com", "Hi", time.UnixMilli(1700000000000))
}

func TestClient_Deliver_ExactPayload(t *testing.T) {
	srv, reqs := newEndpoint(t, http.StatusNoContent)
	c := NewClient(config.WebhookConfig{URL: srv.URL, Timeout: time.Second})

	require.NoError(t, c.Deliver(context.Background(), adaEvent()))

	require.Len(t, reqs, 1)
	got := <-reqs
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t,
		`{"embeds":[{"title":"New message from Ada (ada@x.com)","description":"Hi","color":16711680,"timestamp":"2023-11-14T22:13:20.000Z"}]}`,
		got.body)
}

func TestClient_Deliver_VerbatimText(t *testing.T) {
	srv, reqs := newEndpoint(t, http.StatusOK)
	c := NewClient(config.WebhookConfig{URL: srv.URL, Timeout: time.Second, Color: 0x00ff00})

	ev := envelope.NewNotificationEvent("Tom & Jerry", "<tj@x.com>", "a < b \"quoted\"\nline", time.UnixMilli(1700000000123))
	require.NoError(t, c.Deliver(context.Background(), ev))

	got := <-reqs
	assert.JSONEq(t,
		`{"embeds":[{"title":"New message from Tom & Jerry (<tj@x.com>)","description":"a < b \"quoted\"\nline","color":65280,"timestamp":"2023-11-14T22:13:20.123Z"}]}`,
		got.body)
	assert.Contains(t, got.body, "Tom & Jerry")
}

func TestClient_Deliver_RemoteError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusBadGateway} {
		srv, reqs := newEndpoint(t, status)
		c := NewClient(config.WebhookConfig{URL: srv.URL, Timeout: time.Second})

		err := c.Deliver(context.Background(), adaEvent())
		require.Error(t, err)
		code, ok := IsRemote(err)
		assert.True(t, ok)
		assert.Equal(t, status, code)
		assert.False(t, IsNetwork(err))
		assert.Len(t, reqs, 1, "no retries")
	}
}

func TestClient_Deliver_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(config.WebhookConfig{URL: url, Timeout: time.Second})
	err := c.Deliver(context.Background(), adaEvent())
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestClient_Deliver_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release); srv.Close() })

	c := NewClient(config.WebhookConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})
	err := c.Deliver(context.Background(), adaEvent())
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestClient_Deliver_RateLimiterHonorsContext(t *testing.T) {
	srv, _ := newEndpoint(t, http.StatusOK)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := NewClient(config.WebhookConfig{URL: srv.URL, Timeout: time.Second}, WithLimiter(limiter))

	require.NoError(t, c.Deliver(context.Background(), adaEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Deliver(ctx, adaEvent())
	assert.True(t, IsNetwork(err))
}

type countingSender struct {
	calls atomic.Int32
	err   error
}

func (s *countingSender) Deliver(context.Context, envelope.NotificationEvent) error {
	s.calls.Add(1)
	return s.err
}

func TestCircuitBreakerSender_OpensOnServerErrors(t *testing.T) {
	next := &countingSender{err: remoteError(http.StatusServiceUnavailable)}
	s := NewCircuitBreakerSender(next, config.CircuitBreakerConfig{
		Enabled: true, FailureRatio: 0.5, MinRequests: 2, Timeout: time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, ok := IsRemote(s.Deliver(context.Background(), adaEvent()))
		assert.True(t, ok)
	}

	err := s.Deliver(context.Background(), adaEvent())
	assert.True(t, IsNetwork(err))
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Equal(t, "open", s.State())
}

func TestCircuitBreakerSender_ClientErrorsKeepBreakerClosed(t *testing.T) {
	next := &countingSender{err: remoteError(http.StatusBadRequest)}
	s := NewCircuitBreakerSender(next, config.CircuitBreakerConfig{
		Enabled: true, FailureRatio: 0.5, MinRequests: 2, Timeout: time.Minute,
	})

	for i := 0; i < 4; i++ {
		_, ok := IsRemote(s.Deliver(context.Background(), adaEvent()))
		assert.True(t, ok)
	}
	assert.Equal(t, int32(4), next.calls.Load())
	assert.Equal(t, "closed", s.State())
}
