package texture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/frame"
	"github.com/shimrelay/shimrelay/internal/gl"
	"github.com/shimrelay/shimrelay/internal/logging"
	"github.com/shimrelay/shimrelay/internal/metrics"
)

// FenceWaitTimeout bounds how long Bind waits on a slot's fence. When
// it expires Bind leaves s unchanged and rebinds the current d without
// an error; only a failed wait reports FENCE_WAIT_FAILED.
const FenceWaitTimeout = 250 * time.Millisecond

type slot struct {
	textures []gl.TextureID
	pbo      gl.BufferID
	hasPBO   bool
	mapped   []byte
	sync     gl.SyncID
	hasSync  bool
}

// Texture is the triple-buffered GPU texture pipeline described in
// spec.md §4.5: a ring of up to SlotCount GL texture/PBO slots behind
// a single atomic state word, fed by UpdateFromFrame/Update on the
// ingest side and consumed by Bind on the render side.
type Texture struct {
	api     gl.API
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex // guards structural setup/teardown only
	initialized bool
	streaming   bool
	numSlots    int

	pixFmt  frame.Type
	width   int
	height  int
	stride  int
	pf      gl.PixelFormat
	planes  []PlaneInfo
	offsets []uintptr
	bufSize int

	samplers []gl.SamplerID
	slots    [SlotCount]slot

	state      stateWord
	ready      atomic.Bool
	warnedOnce atomic.Bool
}

// New returns a Texture with no allocated GL objects; call Setup
// before Update/Process/Bind.
func New(api gl.API, m *metrics.Metrics, logger *logging.Logger) *Texture {
	return &Texture{api: api, metrics: m, logger: logger}
}

// Setup (re)allocates the texture/sampler/PBO objects for the given
// frame geometry. Calling it again with identical parameters is a
// no-op beyond resetting the ring state (idempotent setup, spec.md
// §4.5). A plane-count change (e.g. switching between a packed format
// and YUV420) reallocates samplers; every call reallocates textures
// and PBOs since their storage is sized to the new geometry.
func (t *Texture) Setup(fmt frame.Type, width, height, stride uint32, streaming bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized && t.pixFmt == fmt && t.width == int(width) && t.height == int(height) &&
		t.stride == int(stride) && t.streaming == streaming {
		t.state.Store(0, 0, 0, 0)
		t.ready.Store(false)
		t.warnedOnce.Store(false)
		return nil
	}

	pf, planes, offsets, bufSize, err := layoutFor(fmt, width, height, stride)
	if err != nil {
		return shimrelay.NewError("texture.Setup", shimrelay.CodeTexMapFailed, err.Error())
	}

	numSlots := 1
	if streaming {
		numSlots = SlotCount
	}

	if t.initialized {
		t.freeSlotsLocked()
	}
	if len(planes) != t.planeCount() || !t.initialized {
		if len(t.samplers) > 0 {
			t.api.DeleteSamplers(t.samplers)
		}
		t.samplers = t.api.GenSamplers(len(planes))
	}

	for i := 0; i < numSlots; i++ {
		var sl slot
		sl.textures = t.api.GenTextures(len(planes))
		for p, pl := range planes {
			t.api.TexImage2D(sl.textures[p], pf, pl.Cols, pl.Rows)
		}
		if streaming {
			sl.pbo = t.api.GenBuffer()
			t.api.BindPixelUnpackBuffer(sl.pbo)
			t.api.BufferStoragePersistent(sl.pbo, bufSize)
			sl.mapped = t.api.MapBufferRangeWrite(sl.pbo, bufSize)
			sl.hasPBO = true
		}
		t.slots[i] = sl
	}
	for i := numSlots; i < SlotCount; i++ {
		t.slots[i] = slot{}
	}

	t.pixFmt = fmt
	t.width, t.height, t.stride = int(width), int(height), int(stride)
	t.pf = pf
	t.planes = planes
	t.offsets = offsets
	t.bufSize = bufSize
	t.streaming = streaming
	t.numSlots = numSlots
	t.initialized = true
	t.state.Store(0, 0, 0, 0)
	t.ready.Store(false)
	t.warnedOnce.Store(false)
	return nil
}

func (t *Texture) planeCount() int {
	if t.pf == (gl.PixelFormat{}) {
		return 0
	}
	return len(t.planes)
}

func (t *Texture) freeSlotsLocked() {
	for i := 0; i < SlotCount; i++ {
		sl := t.slots[i]
		if sl.hasSync {
			t.api.DeleteSync(sl.sync)
		}
		if sl.hasPBO {
			t.api.BindPixelUnpackBuffer(sl.pbo)
			if sl.mapped != nil {
				t.api.UnmapBuffer(sl.pbo)
			}
			t.api.DeleteBuffer(sl.pbo)
		}
		if len(sl.textures) > 0 {
			t.api.DeleteTextures(sl.textures)
		}
		t.slots[i] = slot{}
	}
}

// Free releases every GL object Setup allocated. Safe to call on an
// already-free Texture.
func (t *Texture) Free() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return
	}
	t.freeSlotsLocked()
	if len(t.samplers) > 0 {
		t.api.DeleteSamplers(t.samplers)
		t.samplers = nil
	}
	t.initialized = false
	t.numSlots = 0
	t.ready.Store(false)
}

// Count reports how many texture/PBO slots are currently allocated
// (1 for a non-streaming texture, SlotCount for a streaming one).
func (t *Texture) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numSlots
}

// Update writes a full frame directly into the non-streaming slot via
// a client-memory TexSubImage2D call, bypassing the PBO ring (spec.md
// §4.5's non-streaming path). Not valid on a texture set up with
// streaming=true.
func (t *Texture) Update(pixels []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return shimrelay.NewError("texture.Update", shimrelay.CodeTexMapFailed, "not set up")
	}
	if t.streaming {
		return shimrelay.NewError("texture.Update", shimrelay.CodeTexMapFailed, "Update is for non-streaming textures; use UpdateFromFrame")
	}
	bytesPerPixel := 1
	if t.pixFmt != frame.TypeYUV420 {
		bytesPerPixel = 4
	}
	sl := t.slots[0]
	for p, pl := range t.planes {
		off := t.offsets[p]
		planeLen := pl.Rows * pl.RowStridePixels * bytesPerPixel
		if int(off)+planeLen > len(pixels) {
			return shimrelay.NewError("texture.Update", shimrelay.CodeCorrupt, "pixel buffer too small for plane layout")
		}
		t.api.SetUnpackRowLength(pl.RowStridePixels)
		t.api.TexSubImage2DFromMemory(sl.textures[p], t.pf, pl.Cols, pl.Rows, pixels[off:int(off)+planeLen])
	}
	t.ready.Store(true)
	t.state.Store(0, 0, 0, 0)
	return nil
}

// UpdateFromFrame implements frame.TextureSink: it copies the live
// frame region (respecting per-row write progress, spec.md invariant
// 7) into the next ring slot's persistently mapped PBO and advances
// w. If w would collide with u the frame is dropped as an overrun
// (spec.md §8 scenario 4): this is normal backpressure, not a fatal
// condition, so the frame is silently discarded and nil is returned —
// only a one-shot warning is logged the first time it happens (spec.md
// §4.5, §7: "drop (return OK)").
func (t *Texture) UpdateFromFrame(ctx context.Context, region []byte, fb frame.FrameBuffer, d frame.Descriptor) error {
	t.mu.Lock()
	initialized := t.initialized
	streaming := t.streaming
	t.mu.Unlock()
	if !initialized {
		return shimrelay.NewError("texture.UpdateFromFrame", shimrelay.CodeTexMapFailed, "not set up")
	}
	if !streaming {
		return shimrelay.NewError("texture.UpdateFromFrame", shimrelay.CodeTexMapFailed, "UpdateFromFrame requires a streaming texture")
	}

	w, collided := t.state.advanceW()
	if collided {
		if !t.warnedOnce.Swap(true) && t.logger != nil {
			t.logger.Warn("texture update overran the ring; dropping frame", "slot", w)
		}
		if t.metrics != nil {
			t.metrics.RecordFrameDropped()
		}
		return nil
	}

	sl := t.slots[w]
	if t.pixFmt == frame.TypeYUV420 {
		// Producer writes planes back-to-back; track progress as one
		// contiguous byte range rather than per-row.
		if err := frame.ReadProgressAware(ctx, sl.mapped, fb, t.bufSize, 1, time.Millisecond); err != nil {
			return shimrelay.WrapError("texture.UpdateFromFrame", err)
		}
	} else {
		rowBytes := t.planes[0].RowStridePixels * 4
		rowCount := t.planes[0].Rows
		if err := frame.ReadProgressAware(ctx, sl.mapped, fb, rowBytes, rowCount, time.Millisecond); err != nil {
			return shimrelay.WrapError("texture.UpdateFromFrame", err)
		}
	}

	if t.metrics != nil {
		t.metrics.RecordUpload(uint64(len(sl.mapped)), 0)
	}
	t.ready.Store(true)
	return nil
}

// unmapPBOsLocked unmaps every slot's persistently mapped PBO that is
// currently mapped. Grounded on egl_texture_unmap, texture.c:391-404,
// which runs over all TEXTURE_COUNT slots rather than just the one
// about to be uploaded — a GL driver may require every persistent
// mapping into a buffer touched by the upcoming TexSubImage2D to be
// released first, not just the mapping of the slot being uploaded.
func (t *Texture) unmapPBOsLocked() {
	for i := 0; i < t.numSlots; i++ {
		sl := &t.slots[i]
		if sl.hasPBO && sl.mapped != nil {
			t.api.BindPixelUnpackBuffer(sl.pbo)
			t.api.UnmapBuffer(sl.pbo)
			sl.mapped = nil
		}
	}
}

// remapPBOsLocked re-acquires a persistent write mapping for every
// slot's PBO that Process just unmapped. Grounded on egl_texture_map,
// texture.c:126-160 (MAP_WRITE_BIT|MAP_UNSYNCHRONIZED_BIT|
// MAP_INVALIDATE_BUFFER_BIT), called after the fence/flush so the
// driver can invalidate and hand back a fresh mapping without
// stalling on the just-submitted upload.
func (t *Texture) remapPBOsLocked() {
	for i := 0; i < t.numSlots; i++ {
		sl := &t.slots[i]
		if sl.hasPBO && sl.mapped == nil {
			t.api.BindPixelUnpackBuffer(sl.pbo)
			sl.mapped = t.api.MapBufferRangeWrite(sl.pbo, t.bufSize)
		}
	}
}

// Process uploads slot u to its textures via glTexSubImage2D from the
// PBO, creates exactly one fence, and flushes exactly once, stepping u
// to next(u). It is a no-op (not an error) if nothing new has been
// written since the last call, or if uploading would collide with s
// or d (spec.md invariant 3). Grounded on egl_texture_process,
// texture.c:378-413: every persistently mapped PBO is unmapped before
// the upload and remapped afterward (egl_texture_unmap/egl_texture_map,
// texture.c:126-160, :391, :414), since the driver may not allow
// TexSubImage2D from a buffer that still has an outstanding persistent
// mapping anywhere in the ring.
func (t *Texture) Process() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized || !t.streaming {
		return nil
	}
	slotIdx, advanced := t.state.advanceU()
	if !advanced {
		return nil
	}
	sl := &t.slots[slotIdx]
	if sl.hasSync {
		t.api.DeleteSync(sl.sync)
		sl.hasSync = false
	}

	t.unmapPBOsLocked()

	t.api.BindPixelUnpackBuffer(sl.pbo)
	for p, pl := range t.planes {
		t.api.SetUnpackRowLength(pl.RowStridePixels)
		t.api.TexSubImage2D(sl.textures[p], t.pf, pl.Cols, pl.Rows, t.offsets[p])
	}

	sl.sync = t.api.FenceSync()
	sl.hasSync = true
	t.api.Flush()
	if t.metrics != nil {
		t.metrics.RecordFenceCreated()
	}

	t.remapPBOsLocked()
	return nil
}

// Bind waits on the fence of the slot s currently names, without
// advancing s; it steps s past it once the wait confirms the upload is
// visible, steps the display index d one slot behind s, and binds
// every plane's texture and sampler to consecutive texture units
// starting at firstUnit. Returns the slot index bound.
//
// Grounded on egl_texture_bind, texture.c:418-465: if s's slot has no
// outstanding fence, the wait is skipped entirely (there is nothing to
// wait on, which is a different condition from "nothing new to
// display" — both can independently be true). If a fence is present,
// ClientWaitSync is branched three ways: AlreadySignaled/
// ConditionSatisfied deletes the fence and steps s; TimeoutExpired
// leaves s untouched and is not an error — a fence that hasn't
// signaled within FenceWaitTimeout just means the GPU is still working
// on it, and bind() proceeds to rebind whatever d already points at
// (texture.c:441: "GL_TIMEOUT_EXPIRED: break;"); WaitFailed deletes the
// fence and reports CodeFenceWaitFailed, since the sync object itself
// is unusable at that point. d then steps to next(d) only when that
// keeps it strictly behind s (spec.md §4.5, texture.c:454-459).
func (t *Texture) Bind(firstUnit int) (int, error) {
	start := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return 0, shimrelay.NewError("texture.Bind", shimrelay.CodeTexMapFailed, "not set up")
	}

	sSlot := t.state.fenceSlot()
	sl := &t.slots[sSlot]
	if sl.hasSync {
		result := t.api.ClientWaitSync(sl.sync, FenceWaitTimeout)
		switch result {
		case gl.WaitAlreadySignaled, gl.WaitConditionSatisfied:
			t.api.DeleteSync(sl.sync)
			sl.hasSync = false
			t.state.advanceSPast()
		case gl.WaitTimeoutExpired:
			if t.metrics != nil {
				t.metrics.RecordFenceTimeout()
			}
		default:
			t.api.DeleteSync(sl.sync)
			sl.hasSync = false
			if t.metrics != nil {
				t.metrics.RecordFenceTimeout()
			}
			return int(sSlot), shimrelay.NewError("texture.Bind", shimrelay.CodeFenceWaitFailed, "fence wait failed")
		}
	}

	dSlot, advanced := t.state.advanceD()

	dsl := &t.slots[dSlot]
	for p := range t.planes {
		unit := firstUnit + p
		t.api.BindTexture(unit, dsl.textures[p])
		if p < len(t.samplers) {
			t.api.BindSampler(unit, t.samplers[p])
		}
	}
	if advanced && t.metrics != nil {
		t.metrics.RecordBind(time.Since(start))
	}
	return int(dSlot), nil
}

var _ frame.TextureSink = (*Texture)(nil)
