package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopClosesStartedAfterFirstTick(t *testing.T) {
	driver := &RecordingDriver{}
	started := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Loop(ctx, Config{FPSLimit: 200}, driver, started) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("started was never closed")
	}
	<-done
	require.GreaterOrEqual(t, driver.DrawCount(), 1)
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	driver := &RecordingDriver{}
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Loop(ctx, Config{FPSLimit: 500}, driver, started) }()

	<-started
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}

func TestLoopReturnsDriverError(t *testing.T) {
	driver := &RecordingDriver{FailAfter: 1}
	started := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := Loop(ctx, Config{FPSLimit: 500}, driver, started)
	require.Error(t, err)
	require.Equal(t, 1, driver.DrawCount())
}

func TestConfigPeriodFallsBackToRefreshRate(t *testing.T) {
	cfg := Config{RefreshRate: 60}
	require.Equal(t, time.Second/120, cfg.period())
}

func TestConfigPeriodDefaultsTo60FPS(t *testing.T) {
	cfg := Config{}
	require.Equal(t, time.Second/60, cfg.period())
}
