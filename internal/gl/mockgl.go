package gl

import (
	"sync"
	"time"
)

// TexSubImageCall records one recorded TexSubImage2D invocation, letting
// tests assert the exact per-plane row-length/offset pairing spec.md §8
// scenario 5 calls for (3 glTexSubImage2D calls with row lengths
// {640,320,320} for a YUV420 640x480 frame).
type TexSubImageCall struct {
	Texture    TextureID
	BoundPBO   BufferID
	Width      int
	Height     int
	RowLength  int
	Offset     uintptr
	FromMemory bool
	DataLen    int
}

type mappedBuffer struct {
	data   []byte
	mapped bool
}

// MockGL is a counting, call-recording implementation of API, used by
// internal/texture's tests and satisfying spec.md §8's requirement for
// "a mock GL backend that counts alloc/free" — the same role the
// teacher's MockBackend (testing.go) plays for block I/O, applied here
// to GPU object lifetime.
type MockGL struct {
	mu     sync.Mutex
	nextID uint32

	textures map[TextureID]bool
	samplers map[SamplerID]bool
	buffers  map[BufferID]*mappedBuffer
	syncs    map[SyncID]bool
	boundPBO BufferID

	TexturesAllocated int
	TexturesFreed     int
	SamplersAllocated int
	SamplersFreed     int
	BuffersAllocated  int
	BuffersFreed      int
	FencesCreated     int
	FencesDeleted     int
	FlushCount        int

	UnpackRowLengths []int
	TexSubImageCalls []TexSubImageCall

	// NextWaitResult is returned by the next ClientWaitSync call and
	// then reset to WaitAlreadySignaled; set it before calling bind()
	// in a test to force TIMEOUT_EXPIRED/WAIT_FAILED paths.
	NextWaitResult WaitResult
}

// NewMockGL returns a ready-to-use mock with no allocated objects.
func NewMockGL() *MockGL {
	return &MockGL{
		textures:       make(map[TextureID]bool),
		samplers:       make(map[SamplerID]bool),
		buffers:        make(map[BufferID]*mappedBuffer),
		syncs:          make(map[SyncID]bool),
		NextWaitResult: WaitAlreadySignaled,
	}
}

func (m *MockGL) id() uint32 {
	m.nextID++
	return m.nextID
}

func (m *MockGL) GenTextures(n int) []TextureID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TextureID, n)
	for i := range out {
		id := TextureID(m.id())
		m.textures[id] = true
		out[i] = id
	}
	m.TexturesAllocated += n
	return out
}

func (m *MockGL) DeleteTextures(ids []TextureID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if m.textures[id] {
			delete(m.textures, id)
			m.TexturesFreed++
		}
	}
}

func (m *MockGL) GenSamplers(n int) []SamplerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SamplerID, n)
	for i := range out {
		id := SamplerID(m.id())
		m.samplers[id] = true
		out[i] = id
	}
	m.SamplersAllocated += n
	return out
}

func (m *MockGL) DeleteSamplers(ids []SamplerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if m.samplers[id] {
			delete(m.samplers, id)
			m.SamplersFreed++
		}
	}
}

func (m *MockGL) BindTexture(unit int, id TextureID) {}
func (m *MockGL) BindSampler(unit int, id SamplerID) {}

func (m *MockGL) TexImage2D(id TextureID, pf PixelFormat, width, height int) {}

func (m *MockGL) SetUnpackRowLength(pixels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnpackRowLengths = append(m.UnpackRowLengths, pixels)
}

func (m *MockGL) TexSubImage2D(id TextureID, pf PixelFormat, width, height int, pboOffset uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rowLen := 0
	if n := len(m.UnpackRowLengths); n > 0 {
		rowLen = m.UnpackRowLengths[n-1]
	}
	m.TexSubImageCalls = append(m.TexSubImageCalls, TexSubImageCall{
		Texture:   id,
		BoundPBO:  m.boundPBO,
		Width:     width,
		Height:    height,
		RowLength: rowLen,
		Offset:    pboOffset,
	})
}

func (m *MockGL) TexSubImage2DFromMemory(id TextureID, pf PixelFormat, width, height int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TexSubImageCalls = append(m.TexSubImageCalls, TexSubImageCall{
		Texture:    id,
		Width:      width,
		Height:     height,
		FromMemory: true,
		DataLen:    len(data),
	})
}

func (m *MockGL) GenBuffer() BufferID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := BufferID(m.id())
	m.buffers[id] = &mappedBuffer{}
	m.BuffersAllocated++
	return id
}

func (m *MockGL) DeleteBuffer(id BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buffers[id]; ok {
		delete(m.buffers, id)
		m.BuffersFreed++
	}
}

func (m *MockGL) BindPixelUnpackBuffer(id BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boundPBO = id
}

func (m *MockGL) BufferStoragePersistent(id BufferID, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[id]; ok {
		b.data = make([]byte, size)
	}
}

func (m *MockGL) MapBufferRangeWrite(id BufferID, size int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers[id]
	if !ok {
		return nil
	}
	if len(b.data) < size {
		b.data = make([]byte, size)
	}
	b.mapped = true
	return b.data[:size]
}

func (m *MockGL) UnmapBuffer(id BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[id]; ok {
		b.mapped = false
	}
}

func (m *MockGL) FenceSync() SyncID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := SyncID(m.id())
	m.syncs[id] = true
	m.FencesCreated++
	return id
}

func (m *MockGL) ClientWaitSync(s SyncID, timeout time.Duration) WaitResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.syncs[s] {
		return WaitFailed
	}
	result := m.NextWaitResult
	m.NextWaitResult = WaitAlreadySignaled
	return result
}

func (m *MockGL) DeleteSync(s SyncID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncs[s] {
		delete(m.syncs, s)
		m.FencesDeleted++
	}
}

func (m *MockGL) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushCount++
}

// compile-time interface check
var _ API = (*MockGL)(nil)
