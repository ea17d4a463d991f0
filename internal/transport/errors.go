package transport

import "errors"

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrRequestFailed    = errors.New("request reported failure")
	ErrNoAPIBase        = errors.New("api base url is required")
)
