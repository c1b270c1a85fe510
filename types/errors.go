package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol layer. Every failure a request can hit is
// wrapped around one of these, so callers can classify with errors.Is without
// parsing messages:
//
//	res, err := kuzzle.Query(ctx, req, opts)
//	if errors.Is(err, types.ErrTimeout) { ... }
//
// None of them is ever retried automatically by the SDK — resubmission is the
// caller's decision (see middleware.Resubmit).
var (
	// ErrNotConnected — a request was sent while the transport is down and
	// could not be queued.
	ErrNotConnected = errors.New("kuzzle: not connected")

	// ErrConnectionLost — the connection dropped while the request was in
	// flight or queued.
	ErrConnectionLost = errors.New("kuzzle: connection lost")

	// ErrTimeout — no response arrived within the per-request deadline.
	ErrTimeout = errors.New("kuzzle: request timed out")

	// ErrProtocol — malformed frame, correlation mismatch, or an operation
	// the active transport cannot perform (e.g. realtime over HTTP).
	ErrProtocol = errors.New("kuzzle: protocol error")
)

// KuzzleError is a failure returned by the Kuzzle backend itself. It is
// carried in the response envelope and surfaced as the error of the request
// that triggered it.
type KuzzleError struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// NewKuzzleError builds a backend-style error with the given status code and
// message. Mostly useful for test doubles.
func NewKuzzleError(status int, message string) *KuzzleError {
	return &KuzzleError{Status: status, Message: message}
}

// Name maps the HTTP-like status code to the API error name, following
// https://docs-v2.kuzzle.io/api/1/errors.
func (e *KuzzleError) Name() string {
	switch e.Status {
	case 0:
		return "UnidentifiedError"
	case 206:
		return "PartialError"
	case 400:
		return "BadRequestError"
	case 401:
		return "UnauthorizedError"
	case 403:
		return "ForbiddenError"
	case 404:
		return "NotFoundError"
	case 412:
		return "PreconditionError"
	case 413:
		return "SizeLimitError"
	case 500:
		return "InternalError"
	case 503:
		return "ServiceUnavailableError"
	case 504:
		return "GatewayTimeoutError"
	default:
		return "CustomError"
	}
}

func (e *KuzzleError) Error() string {
	// When the backend attached a stack it already contains the message.
	if e.Stack != "" {
		return fmt.Sprintf("[%d] %s", e.Status, e.Stack)
	}
	return fmt.Sprintf("[%d] %s : %s", e.Status, e.Name(), e.Message)
}

// SdkError reports argument misuse detected before anything is sent: empty
// index, missing credentials... Cause names the controller action that
// rejected the call, e.g. "index.create".
type SdkError struct {
	Cause   string
	Message string
}

func NewSdkError(cause, message string) *SdkError {
	return &SdkError{Cause: cause, Message: message}
}

func (e *SdkError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Cause, e.Message)
}
