package generative

import "errors"

var (
	// ErrMalformed marks model output that failed to parse or validate.
	ErrMalformed = errors.New("malformed generative output")
	// ErrUnavailable marks a transport or backend failure.
	ErrUnavailable = errors.New("generative backend unavailable")
)
