package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

var (
	ErrBusClosed = errors.New("event bus closed")
	ErrBusFull   = errors.New("event queue full")
)

// Handler consumes a single event. A handler that panics or returns an
// error is isolated from every other subscriber.
type Handler func(model.Event) error

// Bus is a bounded, non-blocking event bus. Publishers are never stalled
// by slow subscribers: when the queue is full the incoming event is
// dropped and logged.
type Bus struct {
	ch     chan model.Event
	closed uint32

	mu       sync.RWMutex
	byKind   map[enum.EventKind][]Handler
	allKinds []Handler
}

// New allocates a bus with the given queue capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus{
		ch:     make(chan model.Event, capacity),
		byKind: make(map[enum.EventKind][]Handler),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind enum.EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKind[kind] = append(b.byKind[kind], h)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allKinds = append(b.allKinds, h)
}

// Publish enqueues an event without blocking. Overflow drops the event.
func (b *Bus) Publish(e model.Event) error {
	if atomic.LoadUint32(&b.closed) != 0 {
		return ErrBusClosed
	}
	select {
	case b.ch <- e:
		return nil
	default:
		logs.Warnf("event queue full, dropping %s for order %s", e.Kind, e.OrderID)
		return ErrBusFull
	}
}

// Close stops the bus from accepting new events.
func (b *Bus) Close() {
	if atomic.CompareAndSwapUint32(&b.closed, 0, 1) {
		close(b.ch)
	}
}

// Len returns the number of queued events.
func (b *Bus) Len() int {
	return len(b.ch)
}

// Run dispatches events until the context is done or the bus is closed.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.ch:
			if !ok {
				return
			}
			b.dispatch(e)
		}
	}
}

func (b *Bus) dispatch(e model.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.byKind[e.Kind])+len(b.allKinds))
	handlers = append(handlers, b.byKind[e.Kind]...)
	handlers = append(handlers, b.allKinds...)
	b.mu.RUnlock()

	for _, h := range handlers {
		invoke(h, e)
	}
}

// invoke shields the dispatch loop from a misbehaving subscriber.
func invoke(h Handler, e model.Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("subscriber panic on %s for order %s: %v", e.Kind, e.OrderID, r)
		}
	}()
	if err := h(e); err != nil {
		logs.Errorf("subscriber error on %s for order %s: %v", e.Kind, e.OrderID, err)
	}
}
