package render

import (
	"context"
	"sync"
)

// RecordingDriver is a Driver that records every call it receives,
// for assertions in render loop tests — the render-loop analogue of
// gl.MockGL's call-counting role for internal/texture.
type RecordingDriver struct {
	mu        sync.Mutex
	Draws     int
	Resizes   []ResizeCall
	LastFPS   float64
	FailAfter int // if > 0, BindAndDraw returns an error starting on this call count
	err       error
}

type ResizeCall struct {
	Width, Height uint32
}

func (d *RecordingDriver) BindAndDraw(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Draws++
	if d.FailAfter > 0 && d.Draws >= d.FailAfter {
		if d.err == nil {
			d.err = errDriverFailed
		}
		return d.err
	}
	return nil
}

func (d *RecordingDriver) OnResize(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Resizes = append(d.Resizes, ResizeCall{width, height})
}

func (d *RecordingDriver) UpdateFPS(fps float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LastFPS = fps
}

func (d *RecordingDriver) DrawCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Draws
}

var errDriverFailed = recordingError("recording driver: forced failure")

type recordingError string

func (e recordingError) Error() string { return string(e) }
