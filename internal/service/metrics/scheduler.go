package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"abandoned-tracker/internal/domain"
)

const (
	defaultFlushDelay = time.Second

	// maxRequeue bounds the queue when re-queueing failed operations so a
	// persistently failing store cannot grow the buffer without limit.
	maxRequeue = 1000
)

// Processor persists metric deltas, in bulk or one at a time.
type Processor interface {
	ProcessBatch(ctx context.Context, ops []domain.MetricOperation) error
	IncrementAbandonment(ctx context.Context, sellerID int, date, category string, amount float64) error
	IncrementRecovery(ctx context.Context, sellerID int, category, sessionID string) error
}

// Scheduler buffers metric deltas and flushes them in bulk on a timer, or
// synchronously via ForceFlush at shutdown. Metric persistence is
// best-effort: failures fall back to per-operation processing, and
// operations that still fail are re-queued (bounded) rather than surfaced.
// Callers never wait on metric persistence.
type Scheduler struct {
	processor  Processor
	logger     *log.Logger
	flushDelay time.Duration

	mu         sync.Mutex
	queue      []domain.MetricOperation
	timer      *time.Timer
	processing bool
}

func NewScheduler(processor Processor, logger *log.Logger, flushDelay time.Duration) *Scheduler {
	if flushDelay <= 0 {
		flushDelay = defaultFlushDelay
	}
	return &Scheduler{
		processor:  processor,
		logger:     logger,
		flushDelay: flushDelay,
	}
}

// Add enqueues one operation and arms the flush timer if none is pending
// and no flush is in flight. It never blocks on the store.
func (s *Scheduler) Add(op domain.MetricOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, op)
	s.scheduleLocked()
}

// Pending reports the number of buffered operations.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ForceFlush cancels any pending timer and flushes synchronously. Call
// before process exit so buffered metrics are not lost.
func (s *Scheduler) ForceFlush(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.flush(ctx)
}

func (s *Scheduler) scheduleLocked() {
	if s.timer != nil || s.processing {
		return
	}
	s.timer = time.AfterFunc(s.flushDelay, func() {
		s.flush(context.Background())
	})
}

func (s *Scheduler) flush(ctx context.Context) {
	s.mu.Lock()
	s.timer = nil
	if len(s.queue) == 0 || s.processing {
		s.mu.Unlock()
		return
	}
	s.processing = true
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if err := s.processor.ProcessBatch(ctx, batch); err != nil {
		s.logger.Printf("metrics batch flush failed, falling back to individual processing: %v", err)
		failed := s.processIndividually(ctx, batch)
		if len(failed) > 0 {
			s.requeue(failed)
		}
	}

	s.mu.Lock()
	s.processing = false
	if len(s.queue) > 0 {
		s.scheduleLocked()
	}
	s.mu.Unlock()
}

// processIndividually is the fallback path: one store write per operation,
// collecting the operations that still fail.
func (s *Scheduler) processIndividually(ctx context.Context, batch []domain.MetricOperation) []domain.MetricOperation {
	var failed []domain.MetricOperation
	for _, op := range batch {
		var err error
		switch op.Type {
		case domain.MetricAbandonment:
			err = s.processor.IncrementAbandonment(ctx, op.SellerID, op.Date, op.Category, op.Amount)
		case domain.MetricRecovery:
			err = s.processor.IncrementRecovery(ctx, op.SellerID, op.Category, op.SessionID)
		}
		if err != nil {
			s.logger.Printf("individual metric processing failed: %v", err)
			failed = append(failed, op)
		}
	}
	return failed
}

func (s *Scheduler) requeue(failed []domain.MetricOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(failed)+len(s.queue) >= maxRequeue {
		s.logger.Printf("dropping %d failed metric operations, queue limit reached", len(failed))
		return
	}
	s.queue = append(failed, s.queue...)
}
