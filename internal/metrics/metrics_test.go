package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordFrameIngested(t *testing.T) {
	m := NewMetrics()
	m.RecordFrameIngested(1000)
	m.RecordFrameIngested(2000)

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.FramesIngested)
	require.Equal(t, int64(2000), m.LastFrame.Load())
}

func TestRecordFrameDropped(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 100; i++ {
		m.RecordFrameDropped()
	}
	require.Equal(t, uint64(100), m.Snapshot().FramesDropped)
}

func TestRecordUploadBucketing(t *testing.T) {
	m := NewMetrics()
	m.RecordUpload(4096, 50*time.Microsecond)
	m.RecordUpload(4096, 2*time.Second)

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.UploadsCommitted)
	require.Equal(t, uint64(8192), snap.BytesUploaded)
	require.Equal(t, uint64(1), snap.UploadBuckets[2]) // 100us bucket
	require.Equal(t, uint64(1), snap.UploadBuckets[7]) // 10s bucket
}

func TestSetQueueDepth(t *testing.T) {
	m := NewMetrics()
	m.SetQueueDepth(5)
	require.Equal(t, uint32(5), m.Snapshot().QueueDepth)
}
