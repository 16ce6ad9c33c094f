package vote

import "errors"

// Sentinel errors for the voting module.
var (
	ErrNoCandidates  = errors.New("vote requires at least one candidate")
	ErrTallyMismatch = errors.New("tally does not match candidate count")
)
