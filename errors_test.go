package shimrelay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewQueueError("session.Subscribe", 2, CodeNoSuchQueue, "queue 2 inactive")
	require.True(t, errors.Is(err, ErrNoSuchQueue))
	require.False(t, errors.Is(err, ErrCorrupt))
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewQueueError("texture.Process", 0, CodeFenceWaitFailed, "wait failed")
	wrapped := WrapError("render.tick", inner)
	require.True(t, errors.Is(wrapped, ErrFenceWaitFailed))
	require.Equal(t, "render.tick", wrapped.Op)
	require.Equal(t, 0, wrapped.Queue)
}

func TestWrapErrorNilIsNil(t *testing.T) {
	require.Nil(t, WrapError("op", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("wire.Validate", CodeCorrupt, "offset out of range")
	require.True(t, IsCode(err, CodeCorrupt))
	require.False(t, IsCode(err, CodeOverrun))
}

func TestErrorMessageIncludesQueue(t *testing.T) {
	err := NewQueueError("session.Subscribe", 1, CodeNoSuchQueue, "inactive")
	require.Contains(t, err.Error(), "queue=1")
}
