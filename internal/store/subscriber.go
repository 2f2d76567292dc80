package store

import (
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/bus"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// Attach subscribes the store to every bus event. Each event persists
// the order snapshot it carries plus the event row; fill events also
// append a fill row. Persistence failures are logged and never interrupt
// order execution.
func Attach(b *bus.Bus, s *Store) {
	b.SubscribeAll(func(e model.Event) error {
		if e.OrderState != nil {
			if err := s.SaveOrder(e.OrderState); err != nil {
				logs.Errorf("persist order %s failed: %v", e.OrderID, err)
			}
		}

		if err := s.RecordEvent(e); err != nil {
			logs.Errorf("persist event %s for order %s failed: %v", e.Kind, e.OrderID, err)
		}

		if e.Kind == enum.EventFilled || e.Kind == enum.EventPartiallyFilled {
			persistFill(s, e)
		}
		return nil
	})
}

func persistFill(s *Store, e model.Event) {
	amount := detailInt64(e.Details, "amount")
	if amount <= 0 {
		return
	}

	tokenID := ""
	filledTotal := int64(0)
	if e.OrderState != nil {
		tokenID = e.OrderState.TokenID
		filledTotal = e.OrderState.FilledAmount
	}
	price := detailFloat64(e.Details, "price")

	if err := s.RecordFill(e.OrderID, tokenID, amount, price, filledTotal); err != nil {
		logs.Errorf("persist fill for order %s failed: %v", e.OrderID, err)
	}
}

// Event details travel as map[string]any, so numbers arrive as whatever
// type the publisher used.
func detailInt64(details map[string]any, key string) int64 {
	switch v := details[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func detailFloat64(details map[string]any, key string) float64 {
	switch v := details[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
