package coordinator

import "github.com/tailored-agentic-units/storyloop/observability"

// Coordinator event types emitted across a session lifecycle.
const (
	EventConfigure      observability.EventType = "coordinator.configure"
	EventLineCommit     observability.EventType = "coordinator.line.commit"
	EventTurnReject     observability.EventType = "coordinator.turn.reject"
	EventCandidateRetry observability.EventType = "coordinator.candidates.retry"
	EventMerge          observability.EventType = "coordinator.merge"
	EventDegraded       observability.EventType = "coordinator.degraded"
	EventFinalize       observability.EventType = "coordinator.finalize"
	EventScore          observability.EventType = "coordinator.score"
	EventArchive        observability.EventType = "coordinator.archive"
	EventClosed         observability.EventType = "coordinator.closed"
	EventFailed         observability.EventType = "coordinator.failed"
)
