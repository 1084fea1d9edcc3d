package frame

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	shimrelay "github.com/shimrelay/shimrelay"
)

// BufferHeaderSize is the fixed size of the FrameBuffer header: a single
// monotonically increasing "bytes written" progress counter the host
// updates as it copies pixel data in (spec.md §3, §4.4).
const BufferHeaderSize = 8

// FrameBuffer is a view over a region of the shared arena holding a
// progress counter followed by pixel bytes, per spec.md §4.4's
// "progress-aware reader". It never copies; Pixels returns a slice
// directly into the shared region.
type FrameBuffer struct {
	region []byte
	base   uint64
}

// NewFrameBufferView wraps the FrameBuffer found at frame_ptr +
// frame.offset, i.e. region[base:].
func NewFrameBufferView(region []byte, base uint64) FrameBuffer {
	return FrameBuffer{region: region, base: base}
}

// Written atomically loads the current "bytes written" progress
// counter. The host increments this with release semantics as it
// copies pixel rows in; this load is the matching acquire.
func (fb FrameBuffer) Written() uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&fb.region[fb.base])))
}

// SetWritten publishes the progress counter. Used by the in-memory
// region builder standing in for the host in tests/demo.
func (fb FrameBuffer) SetWritten(n uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&fb.region[fb.base])), n)
}

// Pixels returns the pixel byte region following the header, up to n
// bytes (the format-derived dataSize).
func (fb FrameBuffer) Pixels(n uint64) []byte {
	start := fb.base + BufferHeaderSize
	end := start + n
	if end > uint64(len(fb.region)) {
		end = uint64(len(fb.region))
	}
	if start > end {
		return nil
	}
	return fb.region[start:end]
}

// ReadProgressAware copies rowCount rows of rowStride bytes each from fb
// into dst, spinning/yielding on fb.Written() per row rather than
// waiting for the whole frame (spec.md §4.4, invariant 7: row r's copy
// happens only once written >= (r+1)*rowStride). pollInterval bounds
// how often the counter is re-checked; ctx cancellation is the only
// escape if the producer stalls forever (spec.md §5's "suspension
// points only at syscalls" — here, the poll's own sleep).
func ReadProgressAware(ctx context.Context, dst []byte, fb FrameBuffer, rowStride, rowCount int, pollInterval time.Duration) error {
	if len(dst) < rowStride*rowCount {
		return shimrelay.NewError("frame.ReadProgressAware", shimrelay.CodeCorrupt, "destination too small for row layout")
	}
	for row := 0; row < rowCount; row++ {
		target := uint64((row + 1) * rowStride)
		for fb.Written() < target {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
		src := fb.Pixels(target)
		start := row * rowStride
		copy(dst[start:start+rowStride], src[start:start+rowStride])
	}
	return nil
}
