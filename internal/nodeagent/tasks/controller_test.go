package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterWorker(name string, n *atomic.Int64) *Worker {
	return NewWorker(name, 5*time.Millisecond, func(context.Context) { n.Add(1) })
}

func startController(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSuspendWaitsForInFlightIteration(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var finished atomic.Bool

	w := NewWorker("sensor", time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		finished.Store(true)
	})

	c := NewController()
	require.NoError(t, c.Register(w))
	startController(t, c)

	<-started

	suspended := make(chan error, 1)
	go func() { suspended <- c.Suspend(context.Background(), "sensor") }()

	select {
	case <-suspended:
		t.Fatal("suspend returned while an iteration was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-suspended)
	assert.True(t, finished.Load())
	assert.Equal(t, []string{"sensor"}, c.Suspended())
}

func TestSuspendedDoesNotWaitForInFlightIteration(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	w := NewWorker("telemetry", time.Hour, func(context.Context) {
		close(started)
		<-release
	})

	go w.tick(context.Background())
	<-started

	suspended := make(chan error, 1)
	go func() { suspended <- w.Suspend(context.Background()) }()

	polled := make(chan bool, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		polled <- w.Suspended()
	}()

	select {
	case got := <-polled:
		assert.False(t, got, "not suspended while the iteration runs")
	case <-time.After(time.Second):
		t.Fatal("Suspended blocked behind a pending Suspend")
	}

	close(release)
	require.NoError(t, <-suspended)
	assert.True(t, w.Suspended())

	w.Resume()
	assert.False(t, w.Suspended())
}

func TestNoIterationAfterSuspend(t *testing.T) {
	var n atomic.Int64
	c := NewController()
	require.NoError(t, c.Register(counterWorker("report", &n)))
	startController(t, c)

	require.Eventually(t, func() bool { return n.Load() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, c.Suspend(context.Background(), "report"))

	before := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, n.Load())

	require.NoError(t, c.Resume("report"))
	require.Eventually(t, func() bool { return n.Load() > before }, time.Second, time.Millisecond)
}

func TestSuspendResumeIdempotent(t *testing.T) {
	var a, b atomic.Int64
	c := NewController()
	require.NoError(t, c.Register(counterWorker("a", &a)))
	require.NoError(t, c.Register(counterWorker("b", &b)))
	startController(t, c)

	ctx := context.Background()
	require.NoError(t, c.Suspend(ctx, "a"))
	require.NoError(t, c.Suspend(ctx, "a", "b"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Suspended())

	require.NoError(t, c.Resume("a", "b"))
	require.NoError(t, c.Resume("a", "b"))
	assert.Empty(t, c.Suspended())

	// Resume without a prior suspend changes nothing.
	require.NoError(t, c.Resume("b"))
	after := b.Load()
	require.Eventually(t, func() bool { return b.Load() > after }, time.Second, time.Millisecond)
}

func TestSuspendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	w := NewWorker("console", time.Millisecond, func(context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	c := NewController()
	require.NoError(t, c.Register(w))
	startController(t, c)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Suspend(ctx, "console"), context.DeadlineExceeded)
	assert.Empty(t, c.Suspended())

	close(release)
}

func TestHandle(t *testing.T) {
	var n atomic.Int64
	c := NewController()
	require.NoError(t, c.Register(counterWorker("sensor", &n)))
	require.Error(t, c.Register(counterWorker("sensor", &n)))

	_, err := c.Handle("sensor", "missing")
	require.Error(t, err)

	h, err := c.Handle("sensor")
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor"}, h.Names())

	require.NoError(t, h.Suspend(context.Background()))
	assert.Equal(t, []string{"sensor"}, c.Suspended())
	h.Resume()
	assert.Empty(t, c.Suspended())
}
