package vote

import "github.com/tailored-agentic-units/storyloop/observability"

const (
	EventOpen    observability.EventType = "vote.open"
	EventResolve observability.EventType = "vote.resolve"
)
