package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"github.com/youturn45/polymarket-tools/internal/bus"
	"github.com/youturn45/polymarket-tools/internal/exception"
	"github.com/youturn45/polymarket-tools/internal/model"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
)

// Router materializes and executes orders; strategy.Router implements it.
type Router interface {
	CreateOrder(req model.OrderRequest) *model.Order
	Execute(ctx context.Context, req model.OrderRequest, order *model.Order) error
}

// Config tunes the daemon's queue and concurrency limits.
type Config struct {
	QueueCapacity int
	MaxConcurrent int

	// StopGrace is how long Stop waits for running executions before
	// force-cancelling them.
	StopGrace time.Duration
}

// DefaultConfig returns the limits the service runs with out of the box.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 100,
		MaxConcurrent: 5,
		StopGrace:     30 * time.Second,
	}
}

type queued struct {
	req   model.OrderRequest
	order *model.Order
}

// OrderDaemon accepts order requests, queues them, and executes each on
// a bounded worker pool. At most one order runs per token at a time;
// colliding orders are requeued with a short backoff.
type OrderDaemon struct {
	cfg    Config
	router Router
	events *bus.Bus

	queue     chan queued
	semaphore chan struct{}

	mu           sync.Mutex
	running      bool
	activeTokens map[string]string
	records      map[string]*model.Order
	completed    []*model.Order
	failed       []*model.Order

	tasks       sync.WaitGroup
	dispatcher  sync.WaitGroup
	stopAccept  context.CancelFunc
	forceCancel context.CancelFunc
	idle        chan struct{}
	inFlight    int
}

// New builds a stopped daemon.
func New(cfg Config, router Router, events *bus.Bus) *OrderDaemon {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultConfig().StopGrace
	}
	return &OrderDaemon{
		cfg:          cfg,
		router:       router,
		events:       events,
		queue:        make(chan queued, cfg.QueueCapacity),
		semaphore:    make(chan struct{}, cfg.MaxConcurrent),
		activeTokens: make(map[string]string),
		records:      make(map[string]*model.Order),
		idle:         make(chan struct{}),
	}
}

// Start launches the dispatch loop.
func (d *OrderDaemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return exception.ErrDaemonAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	taskCtx, force := context.WithCancel(ctx)
	acceptCtx, stopAccept := context.WithCancel(taskCtx)
	d.forceCancel = force
	d.stopAccept = stopAccept

	d.dispatcher.Add(1)
	go d.dispatch(acceptCtx, taskCtx)

	logs.Infof("order daemon started: queue %d, max concurrent %d", d.cfg.QueueCapacity, d.cfg.MaxConcurrent)
	return nil
}

// Stop drains the daemon: new submissions are rejected immediately,
// running executions get the grace period, then anything still running
// is force-cancelled.
func (d *OrderDaemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return exception.ErrDaemonNotRunning
	}
	d.running = false
	d.mu.Unlock()

	d.stopAccept()
	d.dispatcher.Wait()

	done := make(chan struct{})
	go func() {
		d.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.cfg.StopGrace):
		logs.Warnf("order daemon stop grace (%s) expired, cancelling running orders", d.cfg.StopGrace)
		d.forceCancel()
		<-done
	}

	d.forceCancel()
	logs.Info("order daemon stopped")
	return nil
}

// Submit validates and enqueues a request, returning the assigned order
// id. The queue never blocks the caller; a full queue is an error.
func (d *OrderDaemon) Submit(req model.OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return "", exception.ErrDaemonNotRunning
	}
	d.mu.Unlock()

	order := d.router.CreateOrder(req)

	select {
	case d.queue <- queued{req: req, order: order}:
	default:
		return "", exception.ErrOrderQueueFull
	}

	d.mu.Lock()
	d.records[order.OrderID] = order.Snapshot()
	d.inFlight++
	d.mu.Unlock()

	d.publish(enum.EventQueued, order, map[string]any{
		"strategy": req.Strategy.String(),
		"token_id": req.TokenID,
	})
	logs.Infof("order %s queued: %s %s on %s", order.OrderID, req.Side, req.Strategy, req.TokenID)
	return order.OrderID, nil
}

func (d *OrderDaemon) dispatch(acceptCtx, taskCtx context.Context) {
	defer d.dispatcher.Done()

	for {
		select {
		case <-acceptCtx.Done():
			return
		case item := <-d.queue:
			select {
			case d.semaphore <- struct{}{}:
			case <-acceptCtx.Done():
				d.finish(item.order, enum.StatusFailed, "daemon stopped")
				return
			}

			if !d.claimToken(item.order.TokenID, item.order.OrderID) {
				<-d.semaphore
				d.requeue(acceptCtx, item)
				continue
			}

			d.tasks.Add(1)
			go d.execute(taskCtx, item)
		}
	}
}

// claimToken marks a token busy; false when another order owns it.
func (d *OrderDaemon) claimToken(tokenID, orderID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.activeTokens[tokenID]; busy {
		return false
	}
	d.activeTokens[tokenID] = orderID
	return true
}

func (d *OrderDaemon) releaseToken(tokenID string) {
	d.mu.Lock()
	delete(d.activeTokens, tokenID)
	d.mu.Unlock()
}

// requeue pushes a token-collided order back after a short backoff so
// the holder has time to progress. The backoff goroutine counts as a
// task so Stop cannot return while an order is parked here.
func (d *OrderDaemon) requeue(ctx context.Context, item queued) {
	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		select {
		case <-ctx.Done():
			d.finish(item.order, enum.StatusFailed, "daemon stopped")
			return
		case <-time.After(time.Second):
		}

		select {
		case d.queue <- item:
		default:
			d.finish(item.order, enum.StatusFailed, "queue full on requeue")
		}
	}()
}

func (d *OrderDaemon) execute(ctx context.Context, item queued) {
	defer d.tasks.Done()
	defer func() { <-d.semaphore }()
	defer d.releaseToken(item.order.TokenID)

	item.order.UpdateStatus(enum.StatusActive)
	d.publish(enum.EventStarted, item.order, nil)

	err := d.router.Execute(ctx, item.req, item.order)
	if err != nil {
		logs.Errorf("order %s execution error: %v", item.order.OrderID, err)
	}

	status := item.order.Status
	if !status.IsTerminal() {
		status = enum.StatusFailed
	}
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	d.finish(item.order, status, reason)
}

// finish records the terminal outcome and emits the lifecycle event.
func (d *OrderDaemon) finish(order *model.Order, status enum.Status, reason string) {
	order.UpdateStatus(status)
	snapshot := order.Snapshot()

	d.mu.Lock()
	d.records[order.OrderID] = snapshot
	if status == enum.StatusFailed {
		d.failed = append(d.failed, snapshot)
	} else {
		d.completed = append(d.completed, snapshot)
	}
	d.inFlight--
	if d.inFlight == 0 {
		close(d.idle)
		d.idle = make(chan struct{})
	}
	d.mu.Unlock()

	kind := enum.EventCompleted
	if status == enum.StatusFailed {
		kind = enum.EventFailed
	}
	details := map[string]any{"final_status": status.String()}
	if reason != "" {
		details["reason"] = reason
	}
	d.publish(kind, order, details)
	logs.Infof("order %s finished: %s (filled %d/%d)", order.OrderID, status, snapshot.FilledAmount, snapshot.TotalSize)
}

// WaitForCompletion blocks until every submitted order reaches a
// terminal state or the timeout lapses; true when everything finished.
func (d *OrderDaemon) WaitForCompletion(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		d.mu.Lock()
		if d.inFlight == 0 {
			d.mu.Unlock()
			return true
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-deadline.C:
			return false
		}
	}
}

// QueueSize reports orders waiting for dispatch.
func (d *OrderDaemon) QueueSize() int {
	return len(d.queue)
}

// OrderStatus returns the latest recorded snapshot of an order. Snapshots
// of running orders reflect the last lifecycle transition, not live fill
// progress.
func (d *OrderDaemon) OrderStatus(orderID string) (*model.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	order, ok := d.records[orderID]
	if !ok {
		return nil, exception.ErrOrderNotFound
	}
	return order.Snapshot(), nil
}

// CompletedOrders returns snapshots of orders that reached a successful
// terminal state.
func (d *OrderDaemon) CompletedOrders() []*model.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.Order, len(d.completed))
	copy(out, d.completed)
	return out
}

// FailedOrders returns snapshots of orders that failed.
func (d *OrderDaemon) FailedOrders() []*model.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.Order, len(d.failed))
	copy(out, d.failed)
	return out
}

// ClearHistory drops finished-order records; in-flight records stay.
func (d *OrderDaemon) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.completed {
		delete(d.records, o.OrderID)
	}
	for _, o := range d.failed {
		delete(d.records, o.OrderID)
	}
	d.completed = nil
	d.failed = nil
}

// Stats summarizes daemon activity.
func (d *OrderDaemon) Stats() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"running":       d.running,
		"queued":        len(d.queue),
		"in_flight":     d.inFlight,
		"active_tokens": len(d.activeTokens),
		"completed":     len(d.completed),
		"failed":        len(d.failed),
	}
}

func (d *OrderDaemon) publish(kind enum.EventKind, order *model.Order, details map[string]any) {
	if d.events == nil {
		return
	}
	_ = d.events.Publish(model.NewEvent(kind, order.OrderID, order.Snapshot(), details))
}
