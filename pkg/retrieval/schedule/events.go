package schedule

type EventType int

const (
	EventState EventType = iota
	EventCountdown
	EventChunk
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventState:
		return "state"
	case EventCountdown:
		return "countdown"
	case EventChunk:
		return "chunk"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Type      EventType
	State     State
	Mode      Mode
	Remaining int   // EventCountdown
	Seq       int   // EventChunk
	Err       error // EventError
}
