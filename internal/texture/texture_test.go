package texture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shimrelay/shimrelay/internal/frame"
	"github.com/shimrelay/shimrelay/internal/gl"
	"github.com/shimrelay/shimrelay/internal/logging"
	"github.com/shimrelay/shimrelay/internal/metrics"
)

func newTestTexture(t *testing.T) (*Texture, *gl.MockGL, *bytes.Buffer) {
	t.Helper()
	m := gl.NewMockGL()
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.Config{Level: logging.LevelWarn, Output: &buf})
	return New(m, metrics.NewMetrics(), logger), m, &buf
}

func TestSetupAllocatesOneSlotWhenNonStreaming(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 64, 32, 64, false))
	require.Equal(t, 1, tex.Count())
	require.Equal(t, 1, m.TexturesAllocated)
	require.Equal(t, 1, m.SamplersAllocated)
	require.Equal(t, 0, m.BuffersAllocated)
}

func TestSetupAllocatesThreeSlotsWhenStreaming(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 64, 32, 64, true))
	require.Equal(t, SlotCount, tex.Count())
	require.Equal(t, SlotCount, m.TexturesAllocated)
	require.Equal(t, 1, m.SamplersAllocated)
	require.Equal(t, SlotCount, m.BuffersAllocated)
}

func TestSetupYUV420AllocatesThreeTexturesPerSlot(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeYUV420, 640, 480, 640, true))
	require.Equal(t, SlotCount*3, m.TexturesAllocated)
	require.Equal(t, 3, m.SamplersAllocated)
}

func TestFreeReleasesEveryGLObject(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 64, 32, 64, true))
	tex.Free()
	require.Equal(t, m.TexturesAllocated, m.TexturesFreed)
	require.Equal(t, m.SamplersAllocated, m.SamplersFreed)
	require.Equal(t, m.BuffersAllocated, m.BuffersFreed)
	require.Equal(t, 0, tex.Count())
}

func TestSetupIsIdempotentForIdenticalParameters(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 64, 32, 64, true))
	allocated := m.TexturesAllocated
	require.NoError(t, tex.Setup(frame.TypeBGRA, 64, 32, 64, true))
	require.Equal(t, allocated, m.TexturesAllocated, "identical Setup call must not reallocate")
}

func TestUpdateNonStreamingUploadsFromMemory(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 4, 2, 4, false))
	pixels := make([]byte, 4*2*4)
	require.NoError(t, tex.Update(pixels))
	require.Len(t, m.TexSubImageCalls, 1)
	require.True(t, m.TexSubImageCalls[0].FromMemory)
}

func TestUpdateRejectsStreamingTexture(t *testing.T) {
	tex, _, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 4, 2, 4, true))
	require.Error(t, tex.Update(make([]byte, 32)))
}

// publishOneFrame simulates the host writing one frame's worth of bytes
// into a fresh in-memory frame buffer and driving it through
// UpdateFromFrame -> Process -> Bind, the same three-stage pipeline
// spec.md §4.5 describes.
func publishOneFrame(t *testing.T, tex *Texture, bufSize int) {
	t.Helper()
	region := make([]byte, frame.BufferHeaderSize+bufSize)
	fb := frame.NewFrameBufferView(region, 0)
	fb.SetWritten(uint64(bufSize))
	desc := frame.Descriptor{Type: frame.TypeBGRA, Width: 64, Height: 32, Stride: 64, Pitch: 256}
	require.NoError(t, tex.UpdateFromFrame(context.Background(), region, fb, desc))
	require.NoError(t, tex.Process())
	_, err := tex.Bind(0)
	require.NoError(t, err)
}

func TestStreamingPublishFiveFramesAdvancesDisplayIndexSteppingOneSlotAtATime(t *testing.T) {
	tex, _, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 64, 32, 64, true))
	bufSize := 32 * 64 * 4

	// Each iteration fully drains update->process->bind before the
	// next begins, so w, u, and s each advance exactly one slot for
	// every frame. d is the exception: advanceD refuses to land d on s
	// (spec.md §4.5, texture.c:454-459), so the very first bind call
	// can't advance it — d's sequence across the five iterations lags
	// one step behind w/u/s: 0,1,2,0,1.
	var ds []int
	for i := 0; i < 5; i++ {
		region := make([]byte, frame.BufferHeaderSize+bufSize)
		fb := frame.NewFrameBufferView(region, 0)
		fb.SetWritten(uint64(bufSize))
		desc := frame.Descriptor{Type: frame.TypeBGRA, Width: 64, Height: 32, Stride: 64, Pitch: 256}
		require.NoError(t, tex.UpdateFromFrame(context.Background(), region, fb, desc))
		require.NoError(t, tex.Process())
		d, err := tex.Bind(0)
		require.NoError(t, err)
		ds = append(ds, d)
	}
	require.Equal(t, []int{0, 1, 2, 0, 1}, ds)
}

func TestOverrunDropsFrameAndWarnsExactlyOnce(t *testing.T) {
	tex, m, logBuf := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 8, 4, 8, true))
	bufSize := 4 * 8 * 4

	// Write frames without ever calling Process/Bind, so w chases all
	// the way around the ring and collides with u (still at its
	// initial position). Overrun is silent recovery (spec.md §4.5, §7):
	// every call must keep returning nil, not fail the caller.
	for i := 0; i < SlotCount+5; i++ {
		region := make([]byte, frame.BufferHeaderSize+bufSize)
		fb := frame.NewFrameBufferView(region, 0)
		fb.SetWritten(uint64(bufSize))
		desc := frame.Descriptor{Type: frame.TypeBGRA, Width: 8, Height: 4, Stride: 8, Pitch: 32}
		require.NoError(t, tex.UpdateFromFrame(context.Background(), region, fb, desc))
	}
	require.True(t, m.FencesCreated == 0, "overrun path never reaches the GPU upload/fence stage")
	require.Equal(t, 1, bytes.Count(logBuf.Bytes(), []byte("overran")))
}

func TestYUV420FrameProducesExpectedRowLengthsAndOffsets(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeYUV420, 640, 480, 640, true))

	bufSize := 480*640 + 2*(240*320)
	require.Equal(t, 460800, bufSize)

	_, planes, offsets, totalSize, err := layoutFor(frame.TypeYUV420, 640, 480, 640)
	require.NoError(t, err)
	require.Equal(t, 460800, totalSize)
	require.Equal(t, []uintptr{0, 307200, 384000}, offsets)
	require.Equal(t, []int{640, 320, 320}, []int{planes[0].RowStridePixels, planes[1].RowStridePixels, planes[2].RowStridePixels})

	region := make([]byte, frame.BufferHeaderSize+bufSize)
	fb := frame.NewFrameBufferView(region, 0)
	fb.SetWritten(uint64(bufSize))
	desc := frame.Descriptor{Type: frame.TypeYUV420, Width: 640, Height: 480, Stride: 640, Pitch: 640}
	require.NoError(t, tex.UpdateFromFrame(context.Background(), region, fb, desc))
	require.NoError(t, tex.Process())

	require.Len(t, m.TexSubImageCalls, 3)
	require.Equal(t, []int{640, 320, 320}, []int{
		m.TexSubImageCalls[0].RowLength,
		m.TexSubImageCalls[1].RowLength,
		m.TexSubImageCalls[2].RowLength,
	})
}

func TestBindWaitsOnFenceAndReportsFailure(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 8, 4, 8, true))
	bufSize := 4 * 8 * 4
	region := make([]byte, frame.BufferHeaderSize+bufSize)
	fb := frame.NewFrameBufferView(region, 0)
	fb.SetWritten(uint64(bufSize))
	desc := frame.Descriptor{Type: frame.TypeBGRA, Width: 8, Height: 4, Stride: 8, Pitch: 32}
	require.NoError(t, tex.UpdateFromFrame(context.Background(), region, fb, desc))
	require.NoError(t, tex.Process())

	m.NextWaitResult = gl.WaitFailed
	_, err := tex.Bind(0)
	require.Error(t, err)
}

// TestBindTimeoutIsNotFatal checks spec.md §4.5's requirement that a
// fence wait timeout leave s unchanged and still bind the current d
// rather than failing the call — a sub-FenceWaitTimeout GPU stall must
// not be treated the same as a genuine WaitFailed (original
// texture.c:441: "GL_TIMEOUT_EXPIRED: break;").
func TestBindTimeoutIsNotFatal(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 8, 4, 8, true))
	bufSize := 4 * 8 * 4
	region := make([]byte, frame.BufferHeaderSize+bufSize)
	fb := frame.NewFrameBufferView(region, 0)
	fb.SetWritten(uint64(bufSize))
	desc := frame.Descriptor{Type: frame.TypeBGRA, Width: 8, Height: 4, Stride: 8, Pitch: 32}
	require.NoError(t, tex.UpdateFromFrame(context.Background(), region, fb, desc))
	require.NoError(t, tex.Process())

	m.NextWaitResult = gl.WaitTimeoutExpired
	slot, err := tex.Bind(0)
	require.NoError(t, err)
	require.Equal(t, 0, slot, "d has not advanced, so the previously displayed slot is rebound")
}

func TestProcessIsNoOpWhenNothingNewWasWritten(t *testing.T) {
	tex, m, _ := newTestTexture(t)
	require.NoError(t, tex.Setup(frame.TypeBGRA, 8, 4, 8, true))
	require.NoError(t, tex.Process())
	require.Equal(t, 0, m.FencesCreated)
}

func TestFenceWaitTimeoutConstantIsPositive(t *testing.T) {
	require.True(t, FenceWaitTimeout > 0)
	_ = time.Millisecond
}
