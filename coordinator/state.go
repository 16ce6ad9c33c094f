package coordinator

// State is the lifecycle position of a coordinator.
type State int32

const (
	Idle State = iota
	Priming
	AwaitingParticipantLine
	AwaitingGeneratorTurn
	Finalizing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Priming:
		return "priming"
	case AwaitingParticipantLine:
		return "awaiting-participant-line"
	case AwaitingGeneratorTurn:
		return "awaiting-generator-turn"
	case Finalizing:
		return "finalizing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further operation can succeed.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}
