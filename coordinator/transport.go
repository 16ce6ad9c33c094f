package coordinator

import (
	"context"

	"github.com/tailored-agentic-units/storyloop/vote"
)

// Transport connects a session to its participants. Participant ids are the
// contributor keys used throughout the session.
type Transport interface {
	vote.Poller

	// Broadcast sends msg to every participant.
	Broadcast(ctx context.Context, msg string) error
	// Collect blocks until participant sends one message.
	Collect(ctx context.Context, participant string) (string, error)
}
