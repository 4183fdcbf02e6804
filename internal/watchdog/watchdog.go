// Package watchdog supervises agent executions: a per-execution
// staleness timer that can abort a running subprocess, and a
// cross-execution consecutive-failure ledger that can halt the whole
// orchestrator.
package watchdog

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watchdog holds the staleness configuration and the failure ledger.
// The ledger is keyed per task, but the halt it triggers is global:
// one task thrashing usually signals an environment problem, not a
// task-specific one.
type Watchdog struct {
	interval    time.Duration
	maxWarnings int
	maxFailures int
	logger      *zap.Logger

	mu       sync.Mutex
	failures map[string]int
}

// New creates a watchdog. interval is the staleness tick, maxWarnings
// the number of ticks before an execution is aborted, maxFailures the
// consecutive-failure count that halts the orchestrator.
func New(interval time.Duration, maxWarnings, maxFailures int, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		interval:    interval,
		maxWarnings: maxWarnings,
		maxFailures: maxFailures,
		logger:      logger,
		failures:    make(map[string]int),
	}
}

// Watch starts the staleness timer for one execution. Every interval it
// logs a warning; after maxWarnings it invokes abort once and stops
// ticking. The returned stop function clears the timer on execution
// completion and is safe to call more than once.
func (w *Watchdog) Watch(taskID string, abort func()) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	stop = func() {
		once.Do(func() { close(done) })
	}

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		warnings := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				warnings++
				w.logger.Warn("execution is stale",
					zap.String("task", taskID),
					zap.Int("warnings", warnings),
					zap.Int("max_warnings", w.maxWarnings))
				if warnings >= w.maxWarnings {
					w.logger.Error("aborting stale execution", zap.String("task", taskID))
					abort()
					return
				}
			}
		}
	}()

	return stop
}

// RecordFailure increments the task's consecutive-failure counter and
// reports whether the orchestrator must halt. It returns true on the
// call that reaches the maximum and false before.
func (w *Watchdog) RecordFailure(taskID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[taskID]++
	return w.failures[taskID] >= w.maxFailures
}

// RecordSuccess clears the task's consecutive-failure counter.
func (w *Watchdog) RecordSuccess(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, taskID)
}

// Failures returns the current consecutive-failure count for a task.
func (w *Watchdog) Failures(taskID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures[taskID]
}
