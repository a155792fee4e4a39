package troubleshoot

import "go.opentelemetry.io/otel/trace"

// State is a step in the life of one analysis request.
type State int

// Request states, in order. A rejected request goes from Received to
// EarlyReject and ends there. Persisted marks the hand-off to the sink, not
// the completed write.
const (
	StateReceived State = iota
	StateValidated
	StateDispatched
	StateAggregated
	StatePersisted
	StateCompleted
	StateEarlyReject
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateDispatched:
		return "dispatched"
	case StateAggregated:
		return "aggregated"
	case StatePersisted:
		return "persisted"
	case StateCompleted:
		return "completed"
	case StateEarlyReject:
		return "early_reject"
	default:
		return "unknown"
	}
}

func (s *Service) transition(span trace.Span, to State) {
	span.AddEvent(to.String())
}
