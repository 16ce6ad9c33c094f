package branch

import "github.com/tailored-agentic-units/storyloop/observability"

const (
	EventStart     observability.EventType = "branch.start"
	EventCandidate observability.EventType = "branch.candidate"
	EventVote      observability.EventType = "branch.vote"
	EventSelect    observability.EventType = "branch.select"
	EventCreate    observability.EventType = "branch.create"
	EventSwitch    observability.EventType = "branch.switch"
)
