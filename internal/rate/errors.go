package rate

import "errors"

var (
	// ErrInvalidWindow is returned when the window length is not positive.
	ErrInvalidWindow = errors.New("rate: window length must be positive")
	// ErrInvalidLimit is returned when the limit is below one.
	ErrInvalidLimit = errors.New("rate: limit must be >= 1")
	// ErrEmptyKey is returned for an empty client key.
	ErrEmptyKey = errors.New("rate: empty key")
)
