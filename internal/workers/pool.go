// Package workers provides the bounded goroutine pool the batch driver
// fans backtest runs out on. Runs share only read-only config and market
// data, so the pool needs no cross-task coordination beyond the queue.
package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed.
type Task interface {
	Execute() error
}

// TaskFunc is a function that can be used as a Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name          string // Pool name for logging
	NumWorkers    int    // Number of worker goroutines
	QueueSize     int    // Size of the task queue
	PanicRecovery bool   // Enable panic recovery in workers
}

// DefaultPoolConfig returns sensible defaults: backtest runs are CPU
// bound, so one worker per core.
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:          name,
		NumWorkers:    runtime.NumCPU(),
		QueueSize:     1024,
		PanicRecovery: true,
	}
}

// Pool manages a pool of worker goroutines.
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	// Metrics
	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
	panicRecovered atomic.Int64
	startTime      time.Time
}

// PoolStats is a point-in-time metrics snapshot.
type PoolStats struct {
	TasksSubmitted int64         `json:"tasks_submitted"`
	TasksCompleted int64         `json:"tasks_completed"`
	TasksFailed    int64         `json:"tasks_failed"`
	PanicRecovered int64         `json:"panic_recovered"`
	Uptime         time.Duration `json:"uptime"`
}

// NewPool creates a new worker pool.
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return // Already running
	}

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.logger.Info("Worker pool started",
		zap.String("pool", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
	)
}

// Submit enqueues a task, blocking when the queue is full. Returns an
// error once the pool is stopped.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return fmt.Errorf("pool %s: not running", p.config.Name)
	}

	select {
	case p.taskQueue <- task:
		p.tasksSubmitted.Add(1)
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("pool %s: shutting down", p.config.Name)
	}
}

// Drain closes the queue and blocks until every submitted task has
// finished.
func (p *Pool) Drain() {
	if !p.running.Swap(false) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()

	p.logger.Info("Worker pool drained",
		zap.String("pool", p.config.Name),
		zap.Int64("completed", p.tasksCompleted.Load()),
		zap.Int64("failed", p.tasksFailed.Load()),
	)
}

// Stop aborts the pool without waiting for queued tasks.
func (p *Pool) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.cancel()
	close(p.taskQueue)
	p.wg.Wait()
}

// GetStats returns current metrics.
func (p *Pool) GetStats() PoolStats {
	return PoolStats{
		TasksSubmitted: p.tasksSubmitted.Load(),
		TasksCompleted: p.tasksCompleted.Load(),
		TasksFailed:    p.tasksFailed.Load(),
		PanicRecovered: p.panicRecovered.Load(),
		Uptime:         time.Since(p.startTime),
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		p.executeTask(id, task)
	}
}

func (p *Pool) executeTask(workerID int, task Task) {
	defer func() {
		if !p.config.PanicRecovery {
			return
		}
		if r := recover(); r != nil {
			p.panicRecovered.Add(1)
			p.tasksFailed.Add(1)
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.config.Name),
				zap.Int("worker", workerID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := task.Execute(); err != nil {
		p.tasksFailed.Add(1)
		p.logger.Warn("Task failed",
			zap.String("pool", p.config.Name),
			zap.Int("worker", workerID),
			zap.Error(err),
		)
		return
	}
	p.tasksCompleted.Add(1)
}
