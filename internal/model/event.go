package model

import (
	"time"

	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// Event is a single order lifecycle notification. OrderState, when
// present, is a snapshot and must not be mutated by consumers.
type Event struct {
	Kind       enum.EventKind
	OrderID    string
	Timestamp  time.Time
	OrderState *Order
	Details    map[string]any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind enum.EventKind, orderID string, state *Order, details map[string]any) Event {
	if details == nil {
		details = map[string]any{}
	}
	return Event{
		Kind:       kind,
		OrderID:    orderID,
		Timestamp:  time.Now(),
		OrderState: state,
		Details:    details,
	}
}
