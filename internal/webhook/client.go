package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"herald/internal/config"
	"herald/internal/constants"
	"herald/internal/envelope"
	"herald/pkg/metrics"
	"herald/pkg/tracing"
)

// Sender delivers one event to the downstream sink.
type Sender interface {
	Deliver(ctx context.Context, ev envelope.NotificationEvent) error
}

type Client struct {
	url        string
	color      int
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func NewClient(cfg config.WebhookConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	color := cfg.Color
	if color == 0 {
		color = constants.DefaultEmbedColor
	}

	c := &Client{
		url:   cfg.URL,
		color: color,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	if cfg.RateLimit.Enabled {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver performs exactly one POST. It never retries.
func (c *Client) Deliver(ctx context.Context, ev envelope.NotificationEvent) error {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "webhook.deliver")
	defer span.End()

	start := time.Now()
	err := c.post(ctx, ev)
	metrics.ObserveDelivery(time.Since(start), deliveryStatus(err))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Client) post(ctx context.Context, ev envelope.NotificationEvent) error {
	body, err := BuildPayload(ev, c.color).Encode()
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return networkError(fmt.Errorf("rate limiter: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return remoteError(resp.StatusCode)
	}
	return nil
}

func deliveryStatus(err error) string {
	if err == nil {
		return "success"
	}
	if IsNetwork(err) {
		return "network_error"
	}
	if _, ok := IsRemote(err); ok {
		return "remote_error"
	}
	return "error"
}
