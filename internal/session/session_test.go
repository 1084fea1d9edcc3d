package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	shimrelay "github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/wire"
)

func newTestRegion(t *testing.T) *wire.Region {
	t.Helper()
	return wire.NewRegion(1, []wire.QueueSpec{
		{Capacity: 8, MaxPayloadLen: 256},
		{Capacity: 4, MaxPayloadLen: 64},
	})
}

func TestInitRejectsBadMagic(t *testing.T) {
	region := make([]byte, wire.HeaderSize)
	_, err := Init(region, nil)
	require.Error(t, err)
	require.True(t, shimrelay.IsCode(err, shimrelay.CodeInvalidMagic))
}

func TestInitSucceedsOnValidRegion(t *testing.T) {
	r := newTestRegion(t)
	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)
	require.True(t, s.SessionValid())
}

func TestSessionValidDetectsReinit(t *testing.T) {
	r := newTestRegion(t)
	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)
	require.True(t, s.SessionValid())

	r.Reinit(999) // host restarted with a new session id
	require.False(t, s.SessionValid())
}

func TestSubscribeInactiveQueueThenActivated(t *testing.T) {
	r := newTestRegion(t)
	r.Deactivate(0)
	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)

	_, err = s.Subscribe(0)
	require.Error(t, err)
	require.True(t, shimrelay.IsCode(err, shimrelay.CodeNoSuchQueue))

	r.Activate(0)
	h, err := s.Subscribe(0)
	require.NoError(t, err)
	require.NotNil(t, h)
}

func TestSubscribeOutOfRangeQueueFails(t *testing.T) {
	r := newTestRegion(t)
	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)

	_, err = s.Subscribe(99)
	require.Error(t, err)
	require.True(t, shimrelay.IsCode(err, shimrelay.CodeNoSuchQueue))
}

func TestFreeInvalidatesSession(t *testing.T) {
	r := newTestRegion(t)
	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)

	s.Free()
	require.False(t, s.SessionValid())

	_, err = s.Subscribe(0)
	require.Error(t, err)
}
