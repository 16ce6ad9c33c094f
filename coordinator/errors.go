package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTurn is returned for any call the current state does not
	// allow. The call has no side effects.
	ErrInvalidTurn = errors.New("invalid turn")
	// ErrNotParticipant is an ErrInvalidTurn for contributors outside the
	// configured participant set.
	ErrNotParticipant = fmt.Errorf("%w: contributor is not a participant", ErrInvalidTurn)
	// ErrNotFound is returned for unknown or already finalized session ids.
	ErrNotFound = errors.New("session not found")
	// ErrSessionFailed wraps the cause that moved a session to Failed.
	ErrSessionFailed = errors.New("session failed")
	// ErrInvalidConfig is returned for configuration the coordinator cannot run.
	ErrInvalidConfig = errors.New("invalid configuration")
)
