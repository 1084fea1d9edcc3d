package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	shimrelay "github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/wire"
)

func TestProcessEmptyQueueReturnsQueueEmpty(t *testing.T) {
	r := newTestRegion(t)
	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)
	h, err := s.Subscribe(0)
	require.NoError(t, err)

	_, err = h.Process()
	require.True(t, errors.Is(err, shimrelay.ErrQueueEmpty))
}

func TestProcessThenMessageDoneFIFO(t *testing.T) {
	r := newTestRegion(t)
	require.True(t, r.Publish(0, 1, []byte("first")))
	require.True(t, r.Publish(0, 2, []byte("second")))

	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)
	h, err := s.Subscribe(0)
	require.NoError(t, err)

	m1, err := h.Process()
	require.NoError(t, err)
	require.Equal(t, "first", string(m1.Payload))
	require.Equal(t, uint32(1), m1.UserData)
	require.NoError(t, h.MessageDone())

	m2, err := h.Process()
	require.NoError(t, err)
	require.Equal(t, "second", string(m2.Payload))
	require.NoError(t, h.MessageDone())

	_, err = h.Process()
	require.True(t, errors.Is(err, shimrelay.ErrQueueEmpty))
}

func TestProcessIsIdempotentBeforeMessageDone(t *testing.T) {
	r := newTestRegion(t)
	require.True(t, r.Publish(0, 7, []byte("x")))

	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)
	h, err := s.Subscribe(0)
	require.NoError(t, err)

	m1, err := h.Process()
	require.NoError(t, err)
	m2, err := h.Process()
	require.NoError(t, err)
	require.Equal(t, m1.Seq, m2.Seq)
	require.Equal(t, m1.Payload, m2.Payload)
}

func TestMessageDoneWithoutProcessFails(t *testing.T) {
	r := newTestRegion(t)
	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)
	h, err := s.Subscribe(0)
	require.NoError(t, err)

	err = h.MessageDone()
	require.Error(t, err)
}

func TestMessageDoneExactlyOnceAdvancesConsumer(t *testing.T) {
	r := newTestRegion(t)
	require.True(t, r.Publish(0, 0, []byte("a")))

	s, err := Init(r.Bytes(), nil)
	require.NoError(t, err)
	h, err := s.Subscribe(0)
	require.NoError(t, err)

	_, err = h.Process()
	require.NoError(t, err)
	require.NoError(t, h.MessageDone())

	cons, ok := wire.ReadConsumerIndex(r.Bytes(), r.Header(), 0)
	require.True(t, ok)
	require.Equal(t, uint32(1), cons)
}
