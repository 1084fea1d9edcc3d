// Package gl defines the minimal GL call surface internal/texture needs
// (texture/sampler/buffer objects, persistent-mapped pixel buffers, and
// fence sync), expressed as a small interface never implemented against
// a concrete binding here — the renderer driver that owns a real GL
// context is consumed, not implemented, per spec.md §6. This mirrors
// the teacher's interfaces.Backend/interfaces.Observer shape
// (internal/interfaces/backend.go), generalized from block I/O calls to
// GPU calls.
package gl

import "time"

// TextureID, BufferID, SamplerID, and SyncID are opaque GL object
// handles, kept as distinct types so a texture package bug can't pass
// one where another is expected.
type (
	TextureID uint32
	BufferID  uint32
	SamplerID uint32
	SyncID    uint64
)

// WaitResult mirrors the four outcomes of glClientWaitSync relevant to
// spec.md §4.5's bind() contract.
type WaitResult int

const (
	WaitAlreadySignaled WaitResult = iota
	WaitConditionSatisfied
	WaitTimeoutExpired
	WaitFailed
)

// PixelFormat bundles the three GL enums the pixel format table (spec.md
// §4.5) assigns per plane: internal format, client format, and data type.
type PixelFormat struct {
	InternalFormat uint32
	Format         uint32
	DataType       uint32
}

// Well-known pixel format enum values, named the way the EGL renderer
// names them (original_source/client/renderers/EGL/texture.c) so the
// pixel format table in internal/texture reads the same as the C source
// it is grounded on.
const (
	EnumBGRA               uint32 = 0x80E1
	EnumRGBA               uint32 = 0x1908
	EnumRGB10A2            uint32 = 0x8059
	EnumRed                uint32 = 0x1903
	EnumUnsignedByte       uint32 = 0x1401
	EnumUnsignedInt2_10_10_10Rev uint32 = 0x8368
)

// API is the GL call surface consumed by internal/texture. Every method
// corresponds to one or a small fixed group of real GL calls; no method
// here does anything but what its GL equivalent does, so a production
// implementation is a thin adapter over a real context (e.g. EGL/GLES)
// and the mock implementation in this package is a thin counter over
// the same contract.
type API interface {
	// Texture and sampler object lifecycle.
	GenTextures(n int) []TextureID
	DeleteTextures(ids []TextureID)
	GenSamplers(n int) []SamplerID
	DeleteSamplers(ids []SamplerID)

	// Texture upload. TexImage2D allocates storage with null data
	// (spec.md §3 "glTexImage2D-equivalent null-data call per plane");
	// TexSubImage2D uploads from the currently bound pixel-unpack
	// buffer at byte offset pboOffset, with SetUnpackRowLength having
	// been called first to set the stride-in-pixels for that plane.
	BindTexture(unit int, id TextureID)
	BindSampler(unit int, id SamplerID)
	TexImage2D(id TextureID, pf PixelFormat, width, height int)
	SetUnpackRowLength(pixels int)
	// TexSubImage2D uploads from the currently bound pixel-unpack
	// buffer (streaming path).
	TexSubImage2D(id TextureID, pf PixelFormat, width, height int, pboOffset uintptr)
	// TexSubImage2DFromMemory uploads directly from client memory,
	// bypassing the PBO (spec.md §4.5 non-streaming path).
	TexSubImage2DFromMemory(id TextureID, pf PixelFormat, width, height int, data []byte)

	// Persistent-mapped pixel unpack buffer lifecycle.
	GenBuffer() BufferID
	DeleteBuffer(id BufferID)
	BindPixelUnpackBuffer(id BufferID)
	// BufferStoragePersistent allocates size bytes with persistent,
	// write, and coherent storage flags (glBufferStorage-equivalent).
	BufferStoragePersistent(id BufferID, size int)
	// MapBufferRangeWrite returns a persistent, unsynchronized,
	// invalidate-on-map write mapping of the whole buffer (spec.md §9
	// "Persistent mapped buffers").
	MapBufferRangeWrite(id BufferID, size int) []byte
	UnmapBuffer(id BufferID)

	// Fence sync.
	FenceSync() SyncID
	ClientWaitSync(s SyncID, timeout time.Duration) WaitResult
	DeleteSync(s SyncID)
	Flush()
}
