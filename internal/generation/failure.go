// Package generation routes chat completions to a named provider and
// normalises every failure into a ProviderFailure.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sony/gobreaker"
)

// FailureKind classifies why a provider call failed.
type FailureKind string

const (
	KindTimeout       FailureKind = "timeout"
	KindAuth          FailureKind = "auth"
	KindRateLimit     FailureKind = "rate_limit"
	KindMalformed     FailureKind = "malformed"
	KindUnavailable   FailureKind = "unavailable"
	KindNotConfigured FailureKind = "not_configured"
)

var (
	// ErrMalformedResponse is returned by adapters when a response cannot be used.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrRateLimited is returned when the local limiter refuses a call.
	ErrRateLimited = errors.New("provider rate limit reached")
)

// StatusError carries the HTTP status a provider answered with.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// ProviderFailure is the only error type Router.Generate returns.
type ProviderFailure struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (f *ProviderFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s provider %s: %v", f.Provider, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s provider %s", f.Provider, f.Kind)
}

func (f *ProviderFailure) Unwrap() error { return f.Err }

// Classify maps an adapter error onto a ProviderFailure for provider.
func Classify(provider string, err error) *ProviderFailure {
	if err == nil {
		return nil
	}
	var failure *ProviderFailure
	if errors.As(err, &failure) {
		return failure
	}
	return &ProviderFailure{Provider: provider, Kind: kindOf(err), Err: err}
}

func kindOf(err error) FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindUnavailable
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindAuth
		case http.StatusTooManyRequests:
			return KindRateLimit
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return KindTimeout
		case http.StatusNotFound, http.StatusBadRequest, http.StatusUnprocessableEntity:
			return KindMalformed
		}
		return KindUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}
