package enum

// Side buy, sell
type Side uint8

const (
	_side_beg Side = iota
	SideBuy
	SideSell
	_side_end
)

func (s Side) IsAvailable() bool {
	return s > _side_beg && s < _side_end
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func ParseSide(s string) Side {
	switch s {
	case "BUY", "buy":
		return SideBuy
	case "SELL", "sell":
		return SideSell
	default:
		return _side_beg
	}
}

// Status queued, active, partially filled, completed, cancelled, failed
type Status uint8

const (
	_status_beg Status = iota
	StatusQueued
	StatusActive
	StatusPartiallyFilled
	StatusCompleted
	StatusCancelled
	StatusFailed
	_status_end
)

func (s Status) IsAvailable() bool {
	return s > _status_beg && s < _status_end
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusActive:
		return "active"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) Status {
	switch s {
	case "queued":
		return StatusQueued
	case "active":
		return StatusActive
	case "partially_filled":
		return StatusPartiallyFilled
	case "completed":
		return StatusCompleted
	case "cancelled":
		return StatusCancelled
	case "failed":
		return StatusFailed
	default:
		return _status_beg
	}
}

// Urgency low, medium, high
type Urgency uint8

const (
	_urgency_beg Urgency = iota
	UrgencyLow
	UrgencyMedium
	UrgencyHigh
	_urgency_end
)

func (u Urgency) IsAvailable() bool {
	return u > _urgency_beg && u < _urgency_end
}

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "LOW"
	case UrgencyMedium:
		return "MEDIUM"
	case UrgencyHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

func ParseUrgency(s string) Urgency {
	switch s {
	case "LOW", "low":
		return UrgencyLow
	case "MEDIUM", "medium":
		return UrgencyMedium
	case "HIGH", "high":
		return UrgencyHigh
	default:
		return _urgency_beg
	}
}
