package generative

import "github.com/tailored-agentic-units/storyloop/observability"

const (
	EventRequest   observability.EventType = "generative.request"
	EventResponse  observability.EventType = "generative.response"
	EventMalformed observability.EventType = "generative.malformed"
	EventFailure   observability.EventType = "generative.failure"
)
