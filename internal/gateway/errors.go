package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// StatusError is returned when the gateway answers a request with a non-2xx status.
// Body is the response body, kept verbatim for logging.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: gateway returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: gateway returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Gateway-reported failure kinds, recognised from response bodies.
var (
	ErrChipBusy         = errors.New("chip busy")
	ErrAlreadyConnected = errors.New("already connected")
	ErrDeviceNotFound   = errors.New("device not found")
)

// ErrStreamClosed is reported by a subscription whose stream was closed by the gateway.
var ErrStreamClosed = errors.New("event stream closed")

// IsStatus reports whether err is a StatusError with the given status code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode == code
	}
	return false
}

// NormalizeError maps known gateway response bodies to sentinel errors.
// The original error is kept in the chain.
func NormalizeError(err error) error {
	var serr *StatusError
	if !errors.As(err, &serr) {
		return err
	}

	body := strings.ToLower(serr.Body)
	switch {
	case strings.Contains(body, "busy"):
		return fmt.Errorf("%w: %w", ErrChipBusy, err)
	case strings.Contains(body, "already connected"):
		return fmt.Errorf("%w: %w", ErrAlreadyConnected, err)
	case strings.Contains(body, "not found"), strings.Contains(body, "no such device"):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	default:
		return err
	}
}
