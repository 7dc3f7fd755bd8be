package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"go.uber.org/zap"
)

// ErrDispatcherStopped is returned when enqueueing after Stop
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Processor runs one screening request to a terminal status
type Processor interface {
	Process(ctx context.Context, requestID string) error
}

// PendingLister finds requests waiting to be processed
type PendingLister interface {
	ListRequestsByStatus(ctx context.Context, status models.RequestStatus) ([]*models.ScreeningRequest, error)
}

// Dispatcher is a bounded worker pool that processes queued request IDs.
// An ID is tracked from Enqueue until its processing returns, so enqueueing
// it again in between is a no-op.
type Dispatcher struct {
	processor Processor
	logger    *zap.SugaredLogger
	metrics   *monitoring.PrometheusMetrics
	workers   int

	queue    chan string
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	tracked map[string]struct{}

	pending       PendingLister
	sweepInterval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a dispatcher with the given worker count and queue size
func NewDispatcher(processor Processor, workers, queueSize int, logger *zap.SugaredLogger, metrics *monitoring.PrometheusMetrics) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		processor: processor,
		logger:    logger.With("component", "dispatcher"),
		metrics:   metrics,
		workers:   workers,
		queue:     make(chan string, queueSize),
		stopChan:  make(chan struct{}),
		tracked:   make(map[string]struct{}),
	}
}

// SetPendingSource makes the dispatcher queue every pending request of lister
// when it starts and again every interval. A non-positive interval only sweeps
// at start. Requests left queued by Stop or refused by a full queue are picked
// up this way.
func (d *Dispatcher) SetPendingSource(lister PendingLister, interval time.Duration) {
	d.pending = lister
	d.sweepInterval = interval
}

// Start launches the workers
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.processLoop(fmt.Sprintf("screening-worker-%d", i))
		}
		d.logger.Infow("Dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
	})
}

// Enqueue queues a request for processing, waiting for room in the queue
// until ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, requestID string) error {
	select {
	case <-d.stopChan:
		return ErrDispatcherStopped
	default:
	}

	if !d.track(requestID) {
		return nil
	}
	select {
	case d.queue <- requestID:
		d.metrics.SetQueueLength(len(d.queue))
		return nil
	case <-d.stopChan:
		d.untrack(requestID)
		return ErrDispatcherStopped
	case <-ctx.Done():
		d.untrack(requestID)
		return fmt.Errorf("enqueue request %s: %w", requestID, ctx.Err())
	}
}

func (d *Dispatcher) track(requestID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tracked[requestID]; ok {
		return false
	}
	d.tracked[requestID] = struct{}{}
	return true
}

func (d *Dispatcher) untrack(requestID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tracked, requestID)
}

// Sweep queues every pending request of the pending source and returns how
// many were newly queued.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	if d.pending == nil {
		return 0, nil
	}
	requests, err := d.pending.ListRequestsByStatus(ctx, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("list pending requests: %w", err)
	}

	queued := 0
	for _, r := range requests {
		if !d.isTracked(r.ID) {
			if err := d.Enqueue(ctx, r.ID); err != nil {
				return queued, err
			}
			queued++
		}
	}
	return queued, nil
}

func (d *Dispatcher) isTracked(requestID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tracked[requestID]
	return ok
}

func (d *Dispatcher) sweepLoop() {
	defer d.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-d.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	d.sweep(ctx)
	if d.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	n, err := d.Sweep(ctx)
	if err != nil && !errors.Is(err, ErrDispatcherStopped) && !errors.Is(err, context.Canceled) {
		d.logger.Warnw("Pending request sweep failed", "queued", n, "error", err)
		return
	}
	if n > 0 {
		d.logger.Infow("Queued pending requests", "count", n)
	}
}

// Stop signals the workers to exit and waits for in-flight requests until ctx is done.
// Requests still queued stay pending.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		close(d.stopChan)
		d.logger.Info("Dispatcher stopping...")
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n := len(d.queue); n > 0 {
			d.logger.Warnw("Dispatcher stopped with queued requests", "queued", n)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) processLoop(workerID string) {
	defer d.wg.Done()
	logger := d.logger.With("worker_id", workerID)

	for {
		select {
		case <-d.stopChan:
			logger.Info("Screening worker stopped")
			return
		case requestID := <-d.queue:
			d.metrics.SetQueueLength(len(d.queue))
			d.process(logger, requestID)
		}
	}
}

func (d *Dispatcher) process(logger *zap.SugaredLogger, requestID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("Screening worker panic recovered",
				"request_id", requestID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	defer d.untrack(requestID)

	if err := d.processor.Process(context.Background(), requestID); err != nil {
		logger.Warnw("Screening request processing failed", "request_id", requestID, "error", err)
	}
}
