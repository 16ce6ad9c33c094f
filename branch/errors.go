package branch

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoCandidates = errors.New("no candidate nodes available")
	ErrNotStarted   = errors.New("story not started")
)
