package match

import "errors"

var (
	ErrInvalidParam       = errors.New("the param is invalid")
	ErrNotFound           = errors.New("not found")
	ErrRunFinished        = errors.New("the run has already been settled")
	ErrRunNotFinished     = errors.New("the run has not been settled yet")
	ErrInvariantViolation = errors.New("order book invariant violated")
	ErrChecksumMismatch   = errors.New("snapshot checksum mismatch")
)
