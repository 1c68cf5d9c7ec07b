package ledger

import (
	"fmt"
	"net/http"
)

// TransportError is any failure talking to the ledger gateway other than a
// missing record. StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("ledger: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("ledger: %s: HTTP %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns true if the gateway asked us to slow down.
func (e *TransportError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable returns true for network failures, rate limits (429) and server
// errors (5xx).
func (e *TransportError) IsRetryable() bool {
	return e.StatusCode == 0 || e.IsRateLimited() || e.StatusCode >= 500
}

// IsFatal returns true when retrying the same request cannot succeed: bad
// credentials or a rejected instruction.
func (e *TransportError) IsFatal() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest,
		http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
