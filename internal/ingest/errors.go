package ingest

import "errors"

var (
	ErrEmptyBatch       = errors.New("no events provided")
	ErrNoValidEvents    = errors.New("no valid events in batch")
	ErrMissingSessionID = errors.New("session id is required")
	ErrMissingPage      = errors.New("page is required")
	ErrInvalidAction    = errors.New("invalid action")
	ErrNegativeValue    = errors.New("value must not be negative")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidCorner    = errors.New("corner must not be negative")
	ErrDwellTooShort    = errors.New("corner dwell is shorter than the minimum")
)
