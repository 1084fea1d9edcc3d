// Command shimrelay-client attaches to a hypervisor-shared memory
// region and mirrors it to a no-op render driver, for smoke-testing
// the client against a real region path. Grounded on the teacher's
// cmd/ublk-mem/main.go: stdlib flag parsing, a logging.Config wired
// from a -v flag, SIGINT/SIGTERM handling via os/signal, and deferred
// cleanup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/gl"
	"github.com/shimrelay/shimrelay/internal/logging"
	"github.com/shimrelay/shimrelay/internal/render"
	"golang.org/x/sys/unix"
)

func main() {
	var (
		regionPath  = flag.String("region", "", "path to the shared memory region (required)")
		frameQueue  = flag.Int("frame-queue", 0, "frame queue id")
		cursorQueue = flag.Int("cursor-queue", 1, "cursor queue id")
		fpsLimit    = flag.Float64("fps", 0, "render FPS limit (0 = 60 FPS)")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *regionPath == "" {
		logger.Error("missing required flag", "flag", "-region")
		fmt.Fprintln(os.Stderr, "usage: shimrelay-client -region <path> [-frame-queue N] [-cursor-queue N] [-fps N]")
		os.Exit(2)
	}

	region, closeRegion, err := openRegion(*regionPath)
	if err != nil {
		logger.Error("failed to open region", "path", *regionPath, "error", err)
		os.Exit(1)
	}
	defer closeRegion()

	client, err := shimrelay.NewClient(shimrelay.Options{
		Region: region,
		GL:     gl.NewMockGL(), // real GL binding is windowing-layer territory, out of core scope
		Driver: render.NoopDriver{},
		Params: shimrelay.Params{
			FrameQueueID:  *frameQueue,
			CursorQueueID: *cursorQueue,
			FPSLimit:      *fpsLimit,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("client started", "region", *regionPath, "frame_queue", *frameQueue, "cursor_queue", *cursorQueue)

	runErr := client.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("client stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("client stopped")
}

// openRegion maps an existing shared memory region at path read-write,
// the way a real deployment would attach to a hypervisor-exposed
// mapping. Grounded on the Mmap/Munmap call pair in
// other_examples/af8e323a_thinkski-frameserver's V4L2 buffer mapping.
func openRegion(path string) (region []byte, closeFn func(), err error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("fstat %s: %w", path, err)
	}
	size := st.Size
	if size <= 0 {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("%s: empty region", path)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return data, func() {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
	}, nil
}

