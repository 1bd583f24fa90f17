// Package controller - Continuous frame loop driving the detection
// pipeline at a fixed cadence.
package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/edge-vision/go-detect/common"
)

// State is the lifecycle state of a Loop.
type State int32

const (
	// StateIdle means the loop is constructed or stopped.
	StateIdle State = iota
	// StateRunning means ticks are being scheduled.
	StateRunning
	// StateStopping means Stop was called and the scheduler is winding
	// down; in-flight work may still finish but its result is discarded.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Runner executes one full pipeline pass over the latest available frame.
// Frame acquisition is the runner's responsibility; the loop guarantees at
// most one runner call is in flight at a time.
type Runner func(ctx context.Context) ([]common.Detection, error)

// Consumer receives each completed detection sequence while the loop is
// still running.
type Consumer func([]common.Detection)

// Metrics is a snapshot of the loop's tick accounting.
type Metrics struct {
	// Ticks counts scheduler fires.
	Ticks uint64
	// Executed counts pipeline runs actually started.
	Executed uint64
	// Skipped counts ticks dropped because a run was still in flight.
	Skipped uint64
	// Failed counts runs that ended in error.
	Failed uint64
}

// Loop schedules pipeline executions at a fixed interval.
//
// Invariant: at most one pipeline execution per loop is in flight. A tick
// arriving while a run is busy is skipped, never queued, which bounds
// latency under slow inference. Stopping cancels future ticks and lets an
// in-flight run finish; its result is discarded if the loop is no longer
// running by completion time.
type Loop struct {
	interval time.Duration
	runner   Runner
	consumer Consumer
	log      *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	busy     atomic.Bool
	ticks    atomic.Uint64
	executed atomic.Uint64
	skipped  atomic.Uint64
	failed   atomic.Uint64
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithLoopLogger attaches a logger. The default is a nop logger.
func WithLoopLogger(log *zap.Logger) LoopOption {
	return func(l *Loop) {
		l.log = log
	}
}

// NewLoop constructs a stopped loop.
//
// Arguments:
//   - interval: The tick cadence, e.g. ~33ms for a 30fps display refresh.
//   - runner: The pipeline execution to drive.
//   - consumer: The sink for completed detection sequences; may be nil.
//
// Returns:
//   - *Loop: The loop in StateIdle.
//   - error: An error if interval or runner is invalid.
func NewLoop(interval time.Duration, runner Runner, consumer Consumer, opts ...LoopOption) (*Loop, error) {
	if interval <= 0 {
		return nil, errors.Errorf("loop interval must be positive, got %s", interval)
	}
	if runner == nil {
		return nil, errors.New("loop requires a runner")
	}
	l := &Loop{
		interval: interval,
		runner:   runner,
		consumer: consumer,
		log:      zap.NewNop(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Start begins scheduling pipeline executions. Calling Start on a loop
// that is already running is a no-op.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.state = StateRunning
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.schedule(runCtx, l.done)
	l.log.Info("frame loop started", zap.Duration("interval", l.interval))
	return nil
}

// Stop cancels future ticks and waits for the scheduler to wind down. An
// in-flight pipeline execution is allowed to finish; its result is
// discarded. Stop on a loop that is not running is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return
	}
	l.state = StateStopping
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done

	l.mu.Lock()
	l.state = StateIdle
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()
	l.log.Info("frame loop stopped", zap.Uint64("skipped_ticks", l.skipped.Load()))
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Metrics returns a snapshot of the tick counters.
func (l *Loop) Metrics() Metrics {
	return Metrics{
		Ticks:    l.ticks.Load(),
		Executed: l.executed.Load(),
		Skipped:  l.skipped.Load(),
		Failed:   l.failed.Load(),
	}
}

// schedule owns the ticker and never blocks on pipeline work; each
// execution is dispatched to its own goroutine.
func (l *Loop) schedule(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick dispatches one pipeline execution unless one is already in flight.
// The busy flag is set before dispatch and cleared only after completion
// or failure, so overlapping ticks observe it reliably.
func (l *Loop) tick(ctx context.Context) {
	l.ticks.Add(1)
	if !l.busy.CompareAndSwap(false, true) {
		l.skipped.Add(1)
		return
	}

	l.executed.Add(1)
	go func() {
		defer l.busy.Store(false)

		detections, err := l.runner(ctx)
		if err != nil {
			l.failed.Add(1)
			l.log.Warn("frame skipped", zap.Error(err))
			return
		}

		l.mu.Lock()
		running := l.state == StateRunning
		l.mu.Unlock()
		if running && l.consumer != nil {
			l.consumer(detections)
		}
	}()
}
