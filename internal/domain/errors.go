package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrValidation rejects malformed input before any persistence attempt.
	ErrValidation = errors.New("validation failed")
	// ErrTransport wraps failures of the underlying store, platform or network call.
	ErrTransport = errors.New("transport failure")
	// ErrUnsupported means push or notification APIs are unavailable in the current environment.
	ErrUnsupported = errors.New("unsupported")
	// ErrPushNotConfigured is returned when no server push key pair is available.
	ErrPushNotConfigured = errors.New("push notifications not configured")
	// ErrSubscriptionGone means the push service no longer accepts the endpoint.
	ErrSubscriptionGone = errors.New("push subscription gone")
)
