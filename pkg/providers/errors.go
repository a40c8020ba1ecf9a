package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProviderError is a failed completion call: a non-2xx reply or a transport
// failure.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when no HTTP reply was received
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AuthError is a rejected API key (401 or 403).
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
}

// RateLimitError is a 429 reply. RetryAfter is zero when the provider sent
// no Retry-After header.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// TimeoutError is a call that outlived the tier timeout.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
}

// ParseError is a 2xx reply whose body could not be decoded. No token
// counts are known for it.
type ParseError struct {
	Provider    string
	RawResponse string
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError is a request rejected before it was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// ConfigError is an unusable provider configuration.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}

// Failure groups call errors by how the escalation path reacts to them.
type Failure int

const (
	// FailureNone is a nil error.
	FailureNone Failure = iota
	// FailureTimeout is a TimeoutError or an expired deadline.
	FailureTimeout
	// FailureRateLimited is a 429 from the provider.
	FailureRateLimited
	// FailureAuth is a rejected key. It will not heal without a config change.
	FailureAuth
	// FailureBadRequest is a ValidationError or ConfigError.
	FailureBadRequest
	// FailureUnavailable is everything else.
	FailureUnavailable
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailureRateLimited:
		return "rate_limited"
	case FailureAuth:
		return "auth"
	case FailureBadRequest:
		return "bad_request"
	default:
		return "unavailable"
	}
}

// Classify maps err onto a Failure, unwrapping fmt.Errorf chains.
func Classify(err error) Failure {
	var (
		te *TimeoutError
		re *RateLimitError
		ae *AuthError
		ve *ValidationError
		ce *ConfigError
	)
	switch {
	case err == nil:
		return FailureNone
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &re):
		return FailureRateLimited
	case errors.As(err, &ae):
		return FailureAuth
	case errors.As(err, &ve), errors.As(err, &ce):
		return FailureBadRequest
	default:
		return FailureUnavailable
	}
}

// IsTimeout reports whether err is a provider timeout or an expired
// context deadline.
func IsTimeout(err error) bool { return Classify(err) == FailureTimeout }

// IsRateLimited reports whether the provider refused the call with 429.
func IsRateLimited(err error) bool { return Classify(err) == FailureRateLimited }
