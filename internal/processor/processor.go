package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// ErrStopped is returned for batches submitted to or cut short by a stopped processor
var ErrStopped = errors.New("processor stopped")

const defaultBatchTimeout = 2 * time.Minute

// processingTask is one task of a batch, tagged with its position
type processingTask struct {
	ctx     context.Context
	index   int
	run     domain.Task
	results chan<- domain.TaskResult
}

// OrderedProcessor runs tasks on a fixed worker pool and hands results back
// in submission order. Batches from concurrent callers share the pool but
// never each other's results.
type OrderedProcessor struct {
	workers      int
	inputQueue   chan *processingTask
	batchTimeout time.Duration
	wg           sync.WaitGroup
	logger       *zap.Logger

	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

// NewOrderedProcessor creates a processor with the given pool size
func NewOrderedProcessor(workers int, queueSize int, logger *zap.Logger) *OrderedProcessor {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}

	return &OrderedProcessor{
		workers:      workers,
		inputQueue:   make(chan *processingTask, queueSize),
		batchTimeout: defaultBatchTimeout,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the worker pool
func (p *OrderedProcessor) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.logger.Info("ordered processor started", zap.Int("workers", p.workers))
	})
}

// Stop stops the worker pool. Tasks already running finish; queued ones
// are abandoned and their batches fail with ErrStopped.
func (p *OrderedProcessor) Stop() {
	p.shutdownOnce.Do(func() {
		close(p.shutdownChan)
		p.wg.Wait()
		p.logger.Info("ordered processor stopped")
	})
}

// Process runs tasks and returns one result per task, in input order
// (implements domain.Processor). Per-task failures are reported in the
// result; the returned error is only set when the batch itself could not
// complete.
func (p *OrderedProcessor) Process(ctx context.Context, tasks []domain.Task) ([]domain.TaskResult, error) {
	if len(tasks) == 0 {
		return []domain.TaskResult{}, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, p.batchTimeout)
	defer cancel()

	// Buffered for the whole batch so workers never block on a caller that left.
	results := make(chan domain.TaskResult, len(tasks))

	for i, task := range tasks {
		t := &processingTask{ctx: batchCtx, index: i, run: task, results: results}
		select {
		case <-batchCtx.Done():
			return nil, batchCtx.Err()
		case <-p.shutdownChan:
			return nil, ErrStopped
		case p.inputQueue <- t:
		}
	}

	ordered := make([]domain.TaskResult, len(tasks))
	for collected := 0; collected < len(tasks); collected++ {
		select {
		case <-batchCtx.Done():
			return nil, batchCtx.Err()
		case <-p.shutdownChan:
			return nil, ErrStopped
		case r := <-results:
			ordered[r.Index] = r
		}
	}
	return ordered, nil
}

// worker processes tasks from the input queue
func (p *OrderedProcessor) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdownChan:
			p.logger.Debug("worker stopping due to shutdown", zap.Int("worker_id", id))
			return
		case task := <-p.inputQueue:
			task.results <- p.run(id, task)
		}
	}
}

func (p *OrderedProcessor) run(workerID int, task *processingTask) (result domain.TaskResult) {
	result.Index = task.index
	if err := task.ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("task panicked",
				zap.Int("worker_id", workerID),
				zap.Int("index", task.index),
				zap.Any("panic", rec),
			)
			result.Err = fmt.Errorf("task %d panicked: %v", task.index, rec)
		}
	}()

	result.Value, result.Err = task.run(task.ctx)
	p.logger.Debug("task processed",
		zap.Int("worker_id", workerID),
		zap.Int("index", task.index),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("failed", result.Err != nil),
	)
	return result
}

// FirstError returns the error of the earliest failed result
func FirstError(results []domain.TaskResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Verify that OrderedProcessor implements domain.Processor interface
var _ domain.Processor = (*OrderedProcessor)(nil)
