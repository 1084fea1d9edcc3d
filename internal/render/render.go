// Package render implements the fixed-period render loop (C6): a
// monotonic-clock tick scheduler that drives a Driver at a target FPS,
// resyncing its deadline against drift every 100 ticks and signaling
// readiness exactly once via a startup channel.
//
// Grounded on original_source/client/src/main.c's renderThread
// (clock_nanosleep(CLOCK_MONOTONIC, TIMER_ABSTIME, ...) with a
// resyncCheck==100 drift check), ported to Go's time.Timer plus an
// accumulated tick deadline. Goroutine lifecycle (pinned goroutine,
// context cancellation, startup handshake) follows the teacher's
// internal/queue/runner.go ioLoop: runtime.LockOSThread() plus a
// "started chan<- error" handshake, generalized from "prime the
// io_uring then report readiness" to "init the render driver then
// report readiness".
package render

import (
	"context"
	"runtime"
	"time"

	"github.com/shimrelay/shimrelay/internal/logging"
)

// ResyncInterval is how many ticks elapse between deadline
// resynchronizations against the monotonic clock, absorbing whatever
// drift accumulated from imprecise sleeps (spec.md §4.6).
const ResyncInterval = 100

// Driver is the renderer surface the render loop drives each tick —
// consumed, not implemented, by this package (spec.md §6: windowing
// and the real GL context are out of scope). BindAndDraw binds the
// current texture slot(s) and issues the draw call; OnResize is
// called when frame ingest observes a geometry change; UpdateFPS
// reports the measured tick rate for on-screen display.
type Driver interface {
	BindAndDraw(ctx context.Context) error
	OnResize(width, height uint32)
	UpdateFPS(fps float64)
}

// NoopDriver implements Driver by doing nothing; useful as a
// placeholder before a real windowing backend is wired in.
type NoopDriver struct{}

func (NoopDriver) BindAndDraw(ctx context.Context) error { return nil }
func (NoopDriver) OnResize(width, height uint32)         {}
func (NoopDriver) UpdateFPS(fps float64)                 {}

// Config controls the tick scheduler.
type Config struct {
	// FPSLimit is the target tick rate. Zero means "use RefreshRate*2"
	// the way spec.md §4.6 describes falling back to the display's
	// reported refresh rate when no explicit limit was requested.
	FPSLimit    float64
	RefreshRate float64
	Logger      *logging.Logger
}

func (c Config) period() time.Duration {
	rate := c.FPSLimit
	if rate <= 0 {
		rate = c.RefreshRate * 2
	}
	if rate <= 0 {
		rate = 60
	}
	return time.Duration(float64(time.Second) / rate)
}

// Loop runs the fixed-period render loop until ctx is canceled. It
// closes started exactly once, after the first successful tick (or
// immediately if the driver's first BindAndDraw call fails, so a
// caller waiting on started is never blocked forever). Loop pins the
// calling goroutine to its OS thread for the duration of the call,
// matching spec.md §5's requirement that the render thread have true
// thread affinity to its GL context.
func Loop(ctx context.Context, cfg Config, driver Driver, started chan<- struct{}) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	period := cfg.period()
	deadline := time.Now().Add(period)
	tick := 0
	windowStart := time.Now()
	windowTicks := 0
	closedStarted := false
	closeStarted := func() {
		if !closedStarted {
			close(started)
			closedStarted = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			closeStarted()
			return ctx.Err()
		default:
		}

		now := time.Now()
		if d := deadline.Sub(now); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				closeStarted()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := driver.BindAndDraw(ctx)
		closeStarted()
		if err != nil {
			logger.Error("render tick failed", "err", err)
			return err
		}

		tick++
		windowTicks++
		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			driver.UpdateFPS(float64(windowTicks) / elapsed.Seconds())
			windowStart = time.Now()
			windowTicks = 0
		}

		deadline = deadline.Add(period)
		if tick%ResyncInterval == 0 {
			// Drift resync: if the accumulated deadline has fallen
			// behind wall-clock time (we've been running slower than
			// the target rate), snap it back to now+period instead of
			// trying to catch up tick-for-tick.
			if now := time.Now(); deadline.Before(now) {
				deadline = now.Add(period)
			}
		}
	}
}
