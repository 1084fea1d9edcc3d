// Package metrics provides atomic counters and latency histograms for the
// shimrelay data path (frame ingest, texture upload, fence wait, bind).
package metrics

import (
	"sync/atomic"
	"time"
)

// latencyBucketBounds are the upper bounds (inclusive) of each latency
// histogram bucket, spanning 1us to 10s logarithmically.
var latencyBucketBounds = [8]time.Duration{
	time.Microsecond,
	10 * time.Microsecond,
	100 * time.Microsecond,
	time.Millisecond,
	10 * time.Millisecond,
	100 * time.Millisecond,
	time.Second,
	10 * time.Second,
}

// Metrics holds atomic counters for the frame/texture data path. All
// methods are safe to call concurrently from the frame, uploader, and
// render threads.
type Metrics struct {
	FramesIngested   atomic.Uint64
	FramesDropped    atomic.Uint64 // overrun drops, spec.md §7 OVERRUN
	CursorsIngested  atomic.Uint64
	UploadsCommitted atomic.Uint64
	BytesUploaded    atomic.Uint64
	FencesCreated    atomic.Uint64
	FencesTimedOut   atomic.Uint64
	BindAdvances     atomic.Uint64
	QueueDepth       atomic.Uint32

	uploadBuckets [8]atomic.Uint64
	bindBuckets   [8]atomic.Uint64

	StartedAt  atomic.Int64
	LastFrame  atomic.Int64
}

// NewMetrics returns a zeroed Metrics ready for use.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func bucketOf(d time.Duration) int {
	for i, bound := range latencyBucketBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBucketBounds) - 1
}

// RecordFrameIngested increments the ingested-frame counter and stamps
// LastFrame with nowUnixNano, supplied by the caller (this package never
// calls time.Now() itself so it stays deterministic for tests).
func (m *Metrics) RecordFrameIngested(nowUnixNano int64) {
	m.FramesIngested.Add(1)
	m.LastFrame.Store(nowUnixNano)
}

// RecordFrameDropped records an overrun drop (spec.md §7 OVERRUN).
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Add(1)
}

// RecordCursorIngested increments the cursor-message counter.
func (m *Metrics) RecordCursorIngested() {
	m.CursorsIngested.Add(1)
}

// RecordUpload records a completed PBO->GPU upload of n bytes taking
// latency, bucketed into the upload histogram.
func (m *Metrics) RecordUpload(n uint64, latency time.Duration) {
	m.UploadsCommitted.Add(1)
	m.BytesUploaded.Add(n)
	m.uploadBuckets[bucketOf(latency)].Add(1)
}

// RecordFenceCreated increments the fence-created counter (one per
// Process call that advances u, per spec.md §8 invariant 4).
func (m *Metrics) RecordFenceCreated() {
	m.FencesCreated.Add(1)
}

// RecordFenceTimeout increments the fence-timeout counter (Bind observed
// TIMEOUT_EXPIRED and left s unchanged, or the fence wait failed).
func (m *Metrics) RecordFenceTimeout() {
	m.FencesTimedOut.Add(1)
}

// RecordBind records a completed Bind call that advanced d, bucketed
// into the bind histogram.
func (m *Metrics) RecordBind(latency time.Duration) {
	m.BindAdvances.Add(1)
	m.bindBuckets[bucketOf(latency)].Add(1)
}

// SetQueueDepth records the current occupancy of a polled queue.
func (m *Metrics) SetQueueDepth(depth uint32) {
	m.QueueDepth.Store(depth)
}

// Snapshot is a point-in-time copy of the counters, safe to marshal or
// log without holding a reference to the live Metrics.
type Snapshot struct {
	FramesIngested   uint64
	FramesDropped    uint64
	CursorsIngested  uint64
	UploadsCommitted uint64
	BytesUploaded    uint64
	FencesCreated    uint64
	FencesTimedOut   uint64
	BindAdvances     uint64
	QueueDepth       uint32
	UploadBuckets    [8]uint64
	BindBuckets      [8]uint64
}

// Snapshot returns a consistent-enough snapshot of all counters. Each
// field load is independently atomic; the whole struct is not a single
// atomic unit, matching the teacher's metrics.Snapshot tradeoff of cheap
// reads over perfect cross-field consistency.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		FramesIngested:   m.FramesIngested.Load(),
		FramesDropped:    m.FramesDropped.Load(),
		CursorsIngested:  m.CursorsIngested.Load(),
		UploadsCommitted: m.UploadsCommitted.Load(),
		BytesUploaded:    m.BytesUploaded.Load(),
		FencesCreated:    m.FencesCreated.Load(),
		FencesTimedOut:   m.FencesTimedOut.Load(),
		BindAdvances:     m.BindAdvances.Load(),
		QueueDepth:       m.QueueDepth.Load(),
	}
	for i := range m.uploadBuckets {
		s.UploadBuckets[i] = m.uploadBuckets[i].Load()
		s.BindBuckets[i] = m.bindBuckets[i].Load()
	}
	return s
}
