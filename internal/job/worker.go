package job

import (
	"context"
	"sync"
	"time"

	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/storage"
)

// Handler processes one dequeued job
type Handler interface {
	Handle(ctx context.Context, j *Job) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, j *Job) error

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, j *Job) error {
	return f(ctx, j)
}

// WorkerPool runs a fixed set of workers draining the queue. Failed jobs
// are re-enqueued with exponential backoff when their error class allows
// a retry, skipped when validation rejects them, and buried on the
// dead-letter list when attempts run out or an invariant breaks.
type WorkerPool struct {
	queue   *Queue
	handler Handler
	audit   *storage.AuditSink
	logger  *logging.Logger

	workers      int
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	pollInterval time.Duration

	wg sync.WaitGroup
}

// NewWorkerPool creates a worker pool from queue configuration
func NewWorkerPool(queue *Queue, handler Handler, audit *storage.AuditSink, cfg *config.QueueConfig, logger *logging.Logger) *WorkerPool {
	return &WorkerPool{
		queue:        queue,
		handler:      handler,
		audit:        audit,
		logger:       logger,
		workers:      cfg.Workers,
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		pollInterval: cfg.PollInterval,
	}
}

// Start launches the workers and the delayed-job promoter. It returns
// immediately; cancel ctx and call Wait to stop.
func (p *WorkerPool) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.promoteLoop(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workLoop(ctx, i)
	}
	p.logger.WithField("workers", p.workers).Info("Worker pool started")
}

// Wait blocks until all workers have stopped
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) promoteLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Warn("Failed to promote delayed jobs")
			}
		}
	}
}

func (p *WorkerPool) workLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.WithField("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		j, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Warn("Failed to dequeue job")
			}
			sleepCtx(ctx, p.pollInterval)
			continue
		}
		if j == nil {
			sleepCtx(ctx, p.pollInterval)
			continue
		}

		p.process(ctx, j)
	}
}

// ProcessOne dequeues and processes a single job. Returns false when the
// queue was empty. Used by tests to drive the pool synchronously.
func (p *WorkerPool) ProcessOne(ctx context.Context) (bool, error) {
	j, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if j == nil {
		return false, nil
	}
	p.process(ctx, j)
	return true, nil
}

func (p *WorkerPool) process(ctx context.Context, j *Job) {
	j.Attempt++
	logger := p.logger.WithFields(map[string]interface{}{
		"jobId":     j.ID,
		"signature": j.Signature,
		"txHash":    j.TransactionHash,
		"logIndex":  j.LogIndex,
		"attempt":   j.Attempt,
	})
	ctx = logging.WithLogger(ctx, logger)

	start := time.Now()
	err := p.handler.Handle(ctx, j)
	duration := time.Since(start)

	rec := storage.AuditRecord{
		JobID:           j.ID,
		Signature:       j.Signature,
		TransactionHash: j.TransactionHash,
		LogIndex:        j.LogIndex,
		AccountID:       j.AccountID,
		Attempt:         j.Attempt,
		Duration:        duration,
		ProcessedAt:     time.Now().UTC(),
	}

	switch {
	case err == nil:
		rec.Outcome = "processed"
		logger.WithField("durationMs", duration.Milliseconds()).Info("Job processed")

	case indexererr.IsValidation(err):
		// Malformed or forged input can never succeed, drop it.
		rec.Outcome = "skipped"
		rec.ErrorClass = string(indexererr.ClassValidation)
		logger.WithError(err).Warn("Job skipped, event rejected by validation")

	case indexererr.ShouldRetry(err) && j.Attempt < p.maxAttempts:
		rec.Outcome = "retried"
		rec.ErrorClass = string(indexererr.ClassOf(err))
		j.LastError = err.Error()
		delay := p.backoff(j.Attempt)
		if qerr := p.queue.EnqueueDelayed(ctx, j, delay); qerr != nil {
			logger.WithError(qerr).Error("Failed to re-enqueue job, burying")
			p.bury(ctx, j, logger)
			rec.Outcome = "failed"
		} else {
			logger.WithError(err).WithField("retryIn", delay.String()).Info("Job scheduled for retry")
		}

	default:
		rec.Outcome = "failed"
		rec.ErrorClass = string(indexererr.ClassOf(err))
		j.LastError = err.Error()
		logger.WithError(err).Error("Job failed permanently, burying")
		p.bury(ctx, j, logger)
	}

	p.audit.Record(ctx, rec)
}

func (p *WorkerPool) bury(ctx context.Context, j *Job, logger *logging.Logger) {
	if err := p.queue.Bury(ctx, j); err != nil {
		logger.WithError(err).Error("Failed to write job to dead-letter list")
	}
}

// backoff returns the delay before retry number attempt+1, doubling from
// the initial delay up to the cap.
func (p *WorkerPool) backoff(attempt int) time.Duration {
	delay := p.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
