package scan

import "errors"

var (
	ErrInvalidWindow       = errors.New("round window must be positive")
	ErrInvalidTicketParams = errors.New("invalid ticket parameters")
)
