package frame

import (
	"context"
	"errors"
	"time"

	shimrelay "github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/logging"
	"github.com/shimrelay/shimrelay/internal/metrics"
)

// Subscriber is the slice of session.QueueHandle frame ingest depends
// on, kept as an interface so this package never imports internal/session
// directly (avoids an import cycle with session's own tests and keeps
// the dependency direction spec.md §2's data-flow table implies: C3
// feeds C4, not the reverse).
type Subscriber interface {
	Process() (*Message, error)
	MessageDone() error
}

// Message is the minimal shape frame ingest needs from a delivered
// queue message (mirrors session.Message's UserData/Payload fields).
type Message struct {
	UserData uint32
	Payload  []byte
}

// TextureSink is the STREAMING-TEX surface frame ingest drives (C5,
// consumed not implemented here — satisfied by *texture.Texture).
type TextureSink interface {
	UpdateFromFrame(ctx context.Context, region []byte, fb FrameBuffer, d Descriptor) error
}

// Ingest implements the per-tick frame consumption loop body described
// in spec.md §4.4: decode, derive dataSize, detect geometry change,
// hand off to STREAMING-TEX, ack.
type Ingest struct {
	sub      Subscriber
	region   []byte
	tex      TextureSink
	geom     GeometryTracker
	onResize func(width, height uint32)
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewIngest builds a frame ingest loop body over sub, reading pixel
// bytes out of region, updating tex, and calling onResize when the
// source geometry changes.
func NewIngest(sub Subscriber, region []byte, tex TextureSink, onResize func(w, h uint32), m *metrics.Metrics, l *logging.Logger) *Ingest {
	if onResize == nil {
		onResize = func(uint32, uint32) {}
	}
	if l == nil {
		l = logging.Default()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Ingest{sub: sub, region: region, tex: tex, onResize: onResize, metrics: m, logger: l}
}

// Tick performs one non-blocking frame-queue poll. A QUEUE_EMPTY
// condition is not an error from the caller's point of view (the
// render/frame loop simply sleeps framePollInterval and retries, per
// spec.md §7); any other error is returned, including
// ErrUnsupportedFrameType, which is fatal for the frame loop.
func (in *Ingest) Tick(ctx context.Context) error {
	msg, err := in.sub.Process()
	if err != nil {
		if errors.Is(err, shimrelay.ErrQueueEmpty) {
			return nil
		}
		return shimrelay.WrapError("frame.Ingest.Tick", err)
	}

	desc, err := DecodeDescriptor(msg.Payload)
	if err != nil {
		_ = in.sub.MessageDone()
		return shimrelay.WrapError("frame.Ingest.Tick", err)
	}

	if _, sizeErr := DataSize(desc); sizeErr != nil {
		in.logger.Error("unsupported frame type", "type", desc.Type.String())
		_ = in.sub.MessageDone()
		return shimrelay.WrapError("frame.Ingest.Tick", sizeErr)
	}

	if in.geom.Update(desc.Width, desc.Height) {
		in.onResize(desc.Width, desc.Height)
	}

	fb := NewFrameBufferView(in.region, desc.PayloadOffset)
	updateErr := in.tex.UpdateFromFrame(ctx, in.region, fb, desc)

	if err := in.sub.MessageDone(); err != nil {
		return shimrelay.WrapError("frame.Ingest.Tick", err)
	}
	if updateErr != nil {
		return shimrelay.WrapError("frame.Ingest.Tick", updateErr)
	}

	in.metrics.RecordFrameIngested(time.Now().UnixNano())
	return nil
}
