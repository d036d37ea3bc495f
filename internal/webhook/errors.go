package webhook

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindNetwork covers dial failures, timeouts and breaker rejections.
	KindNetwork ErrorKind = iota + 1
	// KindRemote is a non-2xx response.
	KindRemote
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

type DeliveryError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Kind == KindRemote {
		return fmt.Sprintf("webhook delivery failed: remote status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook delivery failed: %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetryable is always true: an unreachable or failing endpoint may recover
// before the next redelivery.
func (e *DeliveryError) IsRetryable() bool {
	return true
}

func networkError(err error) *DeliveryError {
	return &DeliveryError{Kind: KindNetwork, Err: err}
}

func remoteError(status int) *DeliveryError {
	return &DeliveryError{Kind: KindRemote, StatusCode: status}
}

func IsNetwork(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == KindNetwork
}

// IsRemote reports whether err is a non-2xx response and returns its status.
func IsRemote(err error) (int, bool) {
	var de *DeliveryError
	if errors.As(err, &de) && de.Kind == KindRemote {
		return de.StatusCode, true
	}
	return 0, false
}
