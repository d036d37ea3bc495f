package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"herald/internal/config"
	"herald/internal/envelope"
	"herald/pkg/circuitbreaker"
)

// CircuitBreakerSender fails fast with a network DeliveryError while the
// endpoint keeps failing, so redelivered records do not pile up on timeouts.
type CircuitBreakerSender struct {
	next Sender
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerSender(next Sender, cfg config.CircuitBreakerConfig) *CircuitBreakerSender {
	cbConfig := circuitbreaker.FromSettings("webhook", cfg)
	cbConfig.IsSuccessful = endpointHealthy
	return &CircuitBreakerSender{
		next: next,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerSender) Deliver(ctx context.Context, ev envelope.NotificationEvent) error {
	_, err := circuitbreaker.Execute(ctx, s.cb, func() (struct{}, error) {
		return struct{}{}, s.next.Deliver(ctx, ev)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return networkError(fmt.Errorf("circuit breaker %s: %w", s.cb.Name(), err))
	}
	return err
}

func (s *CircuitBreakerSender) State() string {
	return s.cb.State().String()
}

// endpointHealthy treats client errors other than 429 as a live endpoint.
func endpointHealthy(err error) bool {
	if err == nil {
		return true
	}
	status, ok := IsRemote(err)
	return ok && status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
