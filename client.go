package shimrelay

import (
	"context"
	"runtime"
	"time"

	"github.com/shimrelay/shimrelay/internal/frame"
	"github.com/shimrelay/shimrelay/internal/gl"
	"github.com/shimrelay/shimrelay/internal/logging"
	"github.com/shimrelay/shimrelay/internal/metrics"
	"github.com/shimrelay/shimrelay/internal/render"
	"github.com/shimrelay/shimrelay/internal/session"
	"github.com/shimrelay/shimrelay/internal/texture"
)

// Params mirrors the original's AppParams (spec.md §6), the set of
// user-facing options the CLI populates and the client threads through
// to the frame/cursor/render loops.
type Params struct {
	FrameQueueID  int
	CursorQueueID int

	FPSLimit           float64
	FramePollInterval  time.Duration
	CursorPollInterval time.Duration

	AutoResize  bool
	KeepAspect  bool
	ForceAspect bool
	ShowFPS     bool
}

// DefaultParams returns the same defaults the CLI falls back to when a
// flag is left unset.
func DefaultParams() Params {
	return Params{
		FrameQueueID:       0,
		CursorQueueID:      1,
		FPSLimit:           0,
		FramePollInterval:  4 * time.Millisecond,
		CursorPollInterval: 8 * time.Millisecond,
		AutoResize:         true,
		ShowFPS:            false,
	}
}

// Options bundles everything Run needs beyond Params: the attached
// region, the GL call surface, the render driver, and optional
// logging/metrics overrides.
type Options struct {
	Region  []byte
	GL      gl.API
	Driver  render.Driver
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Params  Params
}

// Client wires C1-C6 together: a session over the shared region, one
// queue subscriber per frame/cursor queue, the streaming texture
// pipeline, and the render loop, coordinated by a single
// context.Context (spec.md §5's "OS threads" mapped onto
// runtime.LockOSThread()-pinned goroutines, cancellation mapped onto
// context cancellation, the one-shot startup event mapped onto a
// closed channel — the teacher's Runner/Device context.WithCancel
// pattern in internal/queue/runner.go generalized from one I/O loop to
// three cooperating loops).
type Client struct {
	params  Params
	sess    *session.Session
	frameQ  *session.QueueHandle
	cursorQ *session.QueueHandle
	tex     *texture.Texture
	driver  render.Driver
	logger  *logging.Logger
	metrics *metrics.Metrics

	ingest *frame.Ingest
}

// subscriberAdapter satisfies frame.Subscriber by delegating to a
// session.QueueHandle and translating session.Message into
// frame.Message. The two types are structurally identical but kept
// distinct so internal/frame never imports internal/session (spec.md
// §2's data-flow table: C3 feeds C4, never the reverse); this adapter
// is the one place that dependency gets bridged.
type subscriberAdapter struct {
	h *session.QueueHandle
}

func (a subscriberAdapter) Process() (*frame.Message, error) {
	msg, err := a.h.Process()
	if err != nil {
		return nil, err
	}
	return &frame.Message{UserData: msg.UserData, Payload: msg.Payload}, nil
}

func (a subscriberAdapter) MessageDone() error {
	return a.h.MessageDone()
}

// NewClient attaches to opts.Region, validates it, subscribes to the
// frame and cursor queues, and builds the streaming texture pipeline.
// It does not allocate any GL objects until the first frame's geometry
// is known — Setup is called lazily by the frame loop on first
// ingest, exactly as the original defers egl_texture_setup until the
// first frame descriptor arrives.
func NewClient(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics()
	}
	params := opts.Params
	if params.FramePollInterval <= 0 {
		params = DefaultParams()
		params.FPSLimit = opts.Params.FPSLimit
	}
	if opts.Params.FrameQueueID != 0 || opts.Params.CursorQueueID != 0 {
		params.FrameQueueID = opts.Params.FrameQueueID
		params.CursorQueueID = opts.Params.CursorQueueID
	}

	sess, err := session.Init(opts.Region, &session.Config{Logger: logger})
	if err != nil {
		return nil, WrapError("NewClient", err)
	}
	frameQ, err := sess.Subscribe(params.FrameQueueID)
	if err != nil {
		sess.Free()
		return nil, WrapError("NewClient", err)
	}
	cursorQ, err := sess.Subscribe(params.CursorQueueID)
	if err != nil {
		frameQ.Unsubscribe()
		sess.Free()
		return nil, WrapError("NewClient", err)
	}

	tex := texture.New(opts.GL, m, logger)
	driver := opts.Driver
	if driver == nil {
		driver = render.NoopDriver{}
	}

	c := &Client{
		params:  params,
		sess:    sess,
		frameQ:  frameQ,
		cursorQ: cursorQ,
		tex:     tex,
		driver:  driver,
		logger:  logger,
		metrics: m,
	}
	c.ingest = frame.NewIngest(subscriberAdapter{frameQ}, opts.Region, tex, c.onResize, m, logger)
	return c, nil
}

// defaultFrameFormat is the pixel format Setup is (re)called with when
// a geometry change is detected; BGRA is the host's documented default
// format (spec.md §3). A host publishing a different format still
// decodes correctly — DecodeDescriptor always reads the true type
// field — but the very first Setup call needs a format to size the
// texture/PBO objects before the first descriptor has been read.
const defaultFrameFormat = frame.TypeBGRA

func (c *Client) onResize(width, height uint32) {
	if err := c.tex.Setup(defaultFrameFormat, width, height, width, true); err != nil {
		c.logger.Error("texture setup failed on resize", "err", err)
		return
	}
	c.driver.OnResize(width, height)
}

// Close releases every resource the client owns: the texture's GL
// objects, both queue subscriptions, and the session itself. Safe to
// call once; a second call is a no-op beyond re-freeing already-freed
// resources.
func (c *Client) Close() {
	c.tex.Free()
	c.frameQ.Unsubscribe()
	c.cursorQ.Unsubscribe()
	c.sess.Free()
}

// Metrics returns a point-in-time snapshot of the client's counters.
func (c *Client) Metrics() metrics.Snapshot {
	return c.metrics.Snapshot()
}

// SessionValid reports whether the host session is still alive
// (spec.md §4.2's SessionValid, exposed at the client level).
func (c *Client) SessionValid() bool {
	return c.sess.SessionValid()
}

// Run drives the frame loop, cursor loop, and render loop until ctx is
// canceled, returning the first error any of the three loops reports.
// Each loop runs on its own pinned goroutine (spec.md §5); the render
// loop's startup channel is internal to this call and not exposed,
// since nothing outside Run needs to observe first-frame readiness.
func (c *Client) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	started := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		errCh <- c.frameLoop(runCtx)
	}()
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		errCh <- c.cursorLoop(runCtx)
	}()
	go func() {
		cfg := render.Config{FPSLimit: c.params.FPSLimit, Logger: c.logger}
		errCh <- render.Loop(runCtx, cfg, c.driver, started)
	}()

	select {
	case <-started:
	case <-runCtx.Done():
	}

	first := <-errCh
	cancel() // stop whichever loops are still running
	<-errCh
	<-errCh
	return first
}

// frameLoop polls the frame queue on FramePollInterval, blocking
// retries only on QUEUE_EMPTY; any other error from Tick (including
// the fatal UNSUPPORTED_FRAME_TYPE path) stops the loop.
func (c *Client) frameLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.params.FramePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.ingest.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// cursorLoop polls the cursor queue independently of the frame queue,
// per spec.md §5/§9's "cursor/frame queue decoupling" — the two
// sources are read by separate loops so a slow frame producer never
// delays cursor updates or vice versa.
func (c *Client) cursorLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.params.CursorPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			msg, err := c.cursorQ.Process()
			if err != nil {
				if IsCode(err, CodeQueueEmpty) {
					continue
				}
				return err
			}
			if _, decErr := frame.DecodeCursorDescriptor(msg.Payload); decErr != nil {
				_ = c.cursorQ.MessageDone()
				return decErr
			}
			if err := c.cursorQ.MessageDone(); err != nil {
				return err
			}
			c.metrics.RecordCursorIngested()
		}
	}
}
