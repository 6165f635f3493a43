package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAPIKeyMissing is returned when a client is built without a key.
	ErrAPIKeyMissing = errors.New("API key not configured")

	// ErrToolRoundsExceeded is returned when the model keeps requesting tools.
	ErrToolRoundsExceeded = errors.New("tool round limit exceeded")

	// ErrNoToolExecutor is returned when the model requests a tool but the
	// request carried no executor.
	ErrNoToolExecutor = errors.New("model requested a tool but no executor was provided")

	// ErrEmptyResponse is returned when the model produced no content.
	ErrEmptyResponse = errors.New("no completion returned")
)

// RemoteCallError is a failed call to a model API.
type RemoteCallError struct {
	Provider   Provider
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Transient  bool // worth retrying
	Err        error
}

func (e *RemoteCallError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, msg)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a RemoteCallError worth retrying.
func IsTransient(err error) bool {
	var rce *RemoteCallError
	return errors.As(err, &rce) && rce.Transient
}

// transientStatus reports whether an HTTP status is worth retrying.
// 529 is Anthropic's "overloaded".
func transientStatus(code int) bool {
	switch code {
	case 408, 409, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

// transportError wraps a failure that happened before a response arrived.
func transportError(p Provider, err error) *RemoteCallError {
	// Network timeouts retry; the caller's own cancellation or deadline does
	// not, even though context.DeadlineExceeded also reports Timeout().
	transient := true
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		transient = false
	}
	return &RemoteCallError{Provider: p, Message: "request failed: " + err.Error(), Transient: transient, Err: err}
}

// Retryable reports whether the call is worth repeating.
func (e *RemoteCallError) Retryable() bool { return e.Transient }
