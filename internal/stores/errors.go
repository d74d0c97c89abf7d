package stores

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// NotReadyError is returned for any operation attempted outside Ready.
type NotReadyError struct {
	State State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("stores: manager not ready (state=%s)", e.State)
}

// ValidationError marks malformed input data. It is fatal to the single item
// that carries it, never to the whole batch.
type ValidationError struct {
	Item    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Item, e.Message)
	}
	return "validation failed: " + e.Message
}

// TransientError marks a timeout, rate limit or connection reset. The batch
// policy retries these with bounded exponential backoff; once retries are
// exhausted it becomes a recorded failure in the batch result.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// ConfigurationError marks a missing credential or unreachable backend at
// startup. The affected manager must not report Ready.
type ConfigurationError struct {
	Store   string
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Store, e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Store, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransient reports whether err should be retried. Context deadline and
// network timeouts count even when not wrapped explicitly.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}
