package engine

import "errors"

var (
	// ErrInvalidInput marks degenerate scoring vectors or malformed number sequences.
	ErrInvalidInput = errors.New("invalid input")
	// ErrArithmeticOverflow marks an accumulation that no longer fits the ledger field.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
