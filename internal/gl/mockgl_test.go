package gl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockGLTextureLifecycle(t *testing.T) {
	m := NewMockGL()
	ids := m.GenTextures(3)
	require.Len(t, ids, 3)
	require.Equal(t, 3, m.TexturesAllocated)

	m.DeleteTextures(ids)
	require.Equal(t, 3, m.TexturesFreed)
}

func TestMockGLBufferMapUnmap(t *testing.T) {
	m := NewMockGL()
	id := m.GenBuffer()
	m.BufferStoragePersistent(id, 1024)
	mapped := m.MapBufferRangeWrite(id, 1024)
	require.Len(t, mapped, 1024)
	mapped[0] = 0xFF
	m.UnmapBuffer(id)

	remapped := m.MapBufferRangeWrite(id, 1024)
	require.Equal(t, byte(0xFF), remapped[0], "persistent buffer retains data across unmap/remap")
}

func TestMockGLFenceLifecycle(t *testing.T) {
	m := NewMockGL()
	s := m.FenceSync()
	require.Equal(t, 1, m.FencesCreated)

	result := m.ClientWaitSync(s, 20*time.Millisecond)
	require.Equal(t, WaitAlreadySignaled, result)

	m.DeleteSync(s)
	require.Equal(t, 1, m.FencesDeleted)
}

func TestMockGLClientWaitSyncUnknownFails(t *testing.T) {
	m := NewMockGL()
	require.Equal(t, WaitFailed, m.ClientWaitSync(SyncID(999), time.Millisecond))
}

func TestMockGLRecordsTexSubImageRowLength(t *testing.T) {
	m := NewMockGL()
	tex := m.GenTextures(1)[0]
	m.SetUnpackRowLength(640)
	m.TexSubImage2D(tex, PixelFormat{Format: EnumRed}, 640, 480, 0)

	require.Len(t, m.TexSubImageCalls, 1)
	require.Equal(t, 640, m.TexSubImageCalls[0].RowLength)
}
