package controller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edge-vision/go-detect/common"
)

// TestLoopExclusivity verifies that with a runner slower than the tick
// interval, ticks overlapping an in-flight run are skipped rather than
// queued, so far fewer runs start than ticks fire.
func TestLoopExclusivity(t *testing.T) {
	var concurrent atomic.Int32
	var peak atomic.Int32

	runner := func(ctx context.Context) ([]common.Detection, error) {
		cur := concurrent.Add(1)
		defer concurrent.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond) // much longer than one tick
		return nil, nil
	}

	loop, err := NewLoop(time.Millisecond, runner, nil)
	require.NoError(t, err)
	require.NoError(t, loop.Start(context.Background()))

	// Let well over 100 ticks elapse.
	time.Sleep(150 * time.Millisecond)
	loop.Stop()

	m := loop.Metrics()
	require.Greater(t, m.Ticks, uint64(50))
	assert.Less(t, m.Executed, m.Ticks, "busy ticks must be skipped, not queued")
	assert.Greater(t, m.Skipped, uint64(0))
	assert.Equal(t, int32(1), peak.Load(), "at most one run may be in flight")
}

// TestLoopDeliversResults verifies completed runs reach the consumer while
// the loop is running.
func TestLoopDeliversResults(t *testing.T) {
	want := []common.Detection{{Label: "person", Score: 0.9}}
	delivered := make(chan []common.Detection, 1)

	runner := func(ctx context.Context) ([]common.Detection, error) {
		return want, nil
	}
	consumer := func(d []common.Detection) {
		select {
		case delivered <- d:
		default:
		}
	}

	loop, err := NewLoop(time.Millisecond, runner, consumer)
	require.NoError(t, err)
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	select {
	case got := <-delivered:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("consumer never received a result")
	}
}

// TestLoopStopDiscardsInFlightResult verifies an execution that completes
// after Stop does not reach the consumer.
func TestLoopStopDiscardsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var consumed atomic.Int32

	runner := func(ctx context.Context) ([]common.Detection, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return []common.Detection{{Label: "late", Score: 0.5}}, nil
	}
	consumer := func([]common.Detection) {
		consumed.Add(1)
	}

	loop, err := NewLoop(time.Millisecond, runner, consumer)
	require.NoError(t, err)
	require.NoError(t, loop.Start(context.Background()))

	<-started
	loop.Stop()
	close(release)

	// Give the straggler time to finish and (incorrectly) deliver.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), consumed.Load(), "result completed after stop must be discarded")
	assert.Equal(t, StateIdle, loop.State())
}

// TestLoopSurvivesRunnerErrors verifies per-frame failures are logged and
// skipped without terminating the loop.
func TestLoopSurvivesRunnerErrors(t *testing.T) {
	var calls atomic.Int32
	succeeded := make(chan struct{}, 1)

	runner := func(ctx context.Context) ([]common.Detection, error) {
		if calls.Add(1) <= 3 {
			return nil, errors.New("backend hiccup")
		}
		return nil, nil
	}
	consumer := func([]common.Detection) {
		select {
		case succeeded <- struct{}{}:
		default:
		}
	}

	loop, err := NewLoop(time.Millisecond, runner, consumer)
	require.NoError(t, err)
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	select {
	case <-succeeded:
	case <-time.After(time.Second):
		t.Fatal("loop did not keep running after runner errors")
	}
	assert.GreaterOrEqual(t, loop.Metrics().Failed, uint64(3))
}

// TestLoopReentrantStart verifies Start while running is a no-op and Stop
// still winds down to idle once.
func TestLoopReentrantStart(t *testing.T) {
	runner := func(ctx context.Context) ([]common.Detection, error) {
		return nil, nil
	}
	loop, err := NewLoop(time.Millisecond, runner, nil)
	require.NoError(t, err)

	require.NoError(t, loop.Start(context.Background()))
	require.NoError(t, loop.Start(context.Background()))
	assert.Equal(t, StateRunning, loop.State())

	loop.Stop()
	assert.Equal(t, StateIdle, loop.State())

	// A stopped loop can be started again.
	require.NoError(t, loop.Start(context.Background()))
	assert.Equal(t, StateRunning, loop.State())
	loop.Stop()
}

// TestLoopStopWhenIdle verifies Stop on a never-started loop is a no-op.
func TestLoopStopWhenIdle(t *testing.T) {
	loop, err := NewLoop(time.Millisecond, func(context.Context) ([]common.Detection, error) {
		return nil, nil
	}, nil)
	require.NoError(t, err)

	loop.Stop()
	assert.Equal(t, StateIdle, loop.State())
}

// TestLoopConstructionValidation verifies the argument guards.
func TestLoopConstructionValidation(t *testing.T) {
	_, err := NewLoop(0, func(context.Context) ([]common.Detection, error) { return nil, nil }, nil)
	assert.Error(t, err)

	_, err = NewLoop(time.Millisecond, nil, nil)
	assert.Error(t, err)
}

// TestStateString verifies the readable names used in logs.
func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "unknown", State(42).String())
}
