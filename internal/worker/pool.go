package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// Task is a maintenance job run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	// RunAtStart runs the task once before the first tick.
	RunAtStart bool
	Run        func(ctx context.Context) error
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
}

// Pool runs maintenance tasks, one goroutine per task.
type Pool struct {
	tasks  []Task
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// DefaultInterval is used for tasks without an interval.
const DefaultInterval = time.Hour

// NewPool creates a new worker pool.
func NewPool(tasks []Task, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	normalized := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Run == nil {
			continue
		}
		if t.Interval <= 0 {
			t.Interval = DefaultInterval
		}
		if t.Timeout <= 0 {
			t.Timeout = t.Interval
		}
		normalized = append(normalized, t)
	}

	return &Pool{
		tasks:  normalized,
		logger: logger,
		runs:   make(map[string]int),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "tasks", len(p.tasks))

	for _, t := range p.tasks {
		p.wg.Add(1)
		go p.worker(t)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Runs reports how many times the named task has completed.
func (p *Pool) Runs(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs[name]
}

func (p *Pool) worker(t Task) {
	defer p.wg.Done()

	logger := p.logger.With("task", t.Name)
	logger.Debug("worker started", "interval", t.Interval)

	if t.RunAtStart {
		p.runTask(logger, t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case <-ticker.C:
			p.runTask(logger, t)
		}
	}
}

func (p *Pool) runTask(logger *slog.Logger, t Task) {
	if p.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	err := t.Run(ctx)

	p.mu.Lock()
	p.runs[t.Name]++
	p.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) && p.ctx.Err() != nil {
			return
		}
		logger.Error("task failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("task completed", "duration", time.Since(start))
}
