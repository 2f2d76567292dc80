package enum

// EventKind order lifecycle notifications published on the bus
type EventKind uint8

const (
	_event_kind_beg EventKind = iota
	EventQueued
	EventStarted
	EventActive
	EventPartiallyFilled
	EventFilled
	EventCancelled
	EventReplaced
	EventUndercut
	EventCompleted
	EventFailed
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _event_kind_beg && k < _event_kind_end
}

func (k EventKind) String() string {
	switch k {
	case EventQueued:
		return "queued"
	case EventStarted:
		return "started"
	case EventActive:
		return "active"
	case EventPartiallyFilled:
		return "partially_filled"
	case EventFilled:
		return "filled"
	case EventCancelled:
		return "cancelled"
	case EventReplaced:
		return "replaced"
	case EventUndercut:
		return "undercut"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}
