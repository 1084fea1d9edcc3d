package shimrelay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shimrelay/shimrelay/internal/gl"
	"github.com/shimrelay/shimrelay/internal/render"
	"github.com/shimrelay/shimrelay/internal/wire"
)

func newTestOptions(t *testing.T) Options {
	t.Helper()
	region := wire.NewRegion(42, []wire.QueueSpec{
		{Capacity: 8, MaxPayloadLen: 256},
		{Capacity: 8, MaxPayloadLen: 64},
	})
	return Options{
		Region: region.Bytes(),
		GL:     gl.NewMockGL(),
		Driver: &render.RecordingDriver{},
		Params: Params{FramePollInterval: time.Millisecond, CursorPollInterval: time.Millisecond},
	}
}

func TestNewClientSubscribesBothQueues(t *testing.T) {
	c, err := NewClient(newTestOptions(t))
	require.NoError(t, err)
	require.NotNil(t, c)
	require.True(t, c.SessionValid())
	c.Close()
}

func TestNewClientFailsOnBadMagic(t *testing.T) {
	opts := newTestOptions(t)
	bad := make([]byte, len(opts.Region))
	copy(bad, opts.Region)
	bad[0] = 'X'
	opts.Region = bad
	_, err := NewClient(opts)
	require.Error(t, err)
	require.True(t, IsCode(err, CodeInvalidMagic))
}

func TestNewClientFailsOnMissingQueue(t *testing.T) {
	opts := newTestOptions(t)
	opts.Params.CursorQueueID = 7 // out of range for a 2-queue region
	_, err := NewClient(opts)
	require.Error(t, err)
}

func TestClientMetricsSnapshotInitiallyZero(t *testing.T) {
	c, err := NewClient(newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()
	snap := c.Metrics()
	require.Equal(t, uint64(0), snap.FramesIngested)
	require.Equal(t, uint64(0), snap.CursorsIngested)
}

func TestClientRunStopsOnContextCancel(t *testing.T) {
	c, err := NewClient(newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
