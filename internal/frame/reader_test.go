package frame

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadProgressAwareWaitsPerRow(t *testing.T) {
	const rowStride = 16
	const rowCount = 4
	region := make([]byte, int(BufferHeaderSize)+rowStride*rowCount)
	fb := NewFrameBufferView(region, 0)

	for row := 0; row < rowCount; row++ {
		for b := 0; b < rowStride; b++ {
			region[int(BufferHeaderSize)+row*rowStride+b] = byte(row + 1)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for row := 0; row < rowCount; row++ {
			time.Sleep(2 * time.Millisecond)
			fb.SetWritten(uint64((row + 1) * rowStride))
		}
	}()

	dst := make([]byte, rowStride*rowCount)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := ReadProgressAware(ctx, dst, fb, rowStride, rowCount, time.Millisecond)
	require.NoError(t, err)
	wg.Wait()

	for row := 0; row < rowCount; row++ {
		for b := 0; b < rowStride; b++ {
			require.Equal(t, byte(row+1), dst[row*rowStride+b])
		}
	}
}

func TestReadProgressAwareRespectsCancellation(t *testing.T) {
	const rowStride = 8
	region := make([]byte, int(BufferHeaderSize)+rowStride)
	fb := NewFrameBufferView(region, 0) // never written

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := ReadProgressAware(ctx, make([]byte, rowStride), fb, rowStride, 1, time.Millisecond)
	require.Error(t, err)
}

func TestReadProgressAwareRejectsShortDestination(t *testing.T) {
	region := make([]byte, int(BufferHeaderSize)+16)
	fb := NewFrameBufferView(region, 0)
	err := ReadProgressAware(context.Background(), make([]byte, 4), fb, 16, 1, time.Millisecond)
	require.Error(t, err)
}
