// Package session implements the client session (C2) and queue
// subscriber (C3) components: attaching to a shared memory region,
// validating it, tracking host liveness, and delivering per-queue
// messages with ack discipline.
package session

import (
	"sync"
	"time"

	shimrelay "github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/logging"
	"github.com/shimrelay/shimrelay/internal/wire"
)

// DefaultHeartbeatTimeout is how long the host heartbeat counter may go
// unchanged before SessionValid reports the session as stale. Turning
// the original's hardcoded staleness threshold into a configurable
// field follows the teacher's pattern of exposing timing constants as
// struct fields with a documented default (internal/constants in the
// teacher repo).
const DefaultHeartbeatTimeout = 2 * time.Second

// Config configures a Session.
type Config struct {
	HeartbeatTimeout time.Duration
	Logger           *logging.Logger
}

func (c *Config) withDefaults() Config {
	if c == nil {
		return Config{HeartbeatTimeout: DefaultHeartbeatTimeout, Logger: logging.Default()}
	}
	cfg := *c
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return cfg
}

// Session tracks an attached, validated shared region.
type Session struct {
	region []byte
	cfg    Config

	mu                sync.Mutex
	sessionID         uint64
	lastHeartbeat     uint64
	lastHeartbeatSeen time.Time
	freed             bool
}

// Init scans the region header, checks magic/version, and snapshots the
// session id, exactly as spec.md §4.2 describes.
func Init(region []byte, cfg *Config) (*Session, error) {
	c := cfg.withDefaults()

	h, err := wire.ReadHeader(region)
	if err != nil {
		return nil, shimrelay.WrapError("session.Init", err)
	}
	if h.Magic != wire.Magic {
		return nil, shimrelay.NewError("session.Init", shimrelay.CodeInvalidMagic,
			"region magic does not match expected sentinel")
	}
	if h.Version != wire.Version {
		return nil, shimrelay.NewError("session.Init", shimrelay.CodeVersionMismatch,
			"region layout version unsupported")
	}
	if h.SessionID == 0 {
		return nil, shimrelay.NewError("session.Init", shimrelay.CodeInvalidSession,
			"session id is unset")
	}

	s := &Session{
		region:            region,
		cfg:               c,
		sessionID:         h.SessionID,
		lastHeartbeat:     h.Heartbeat,
		lastHeartbeatSeen: time.Now(),
	}
	c.Logger.Debug("session initialized", "session_id", h.SessionID, "queues", h.QueueCount)
	return s, nil
}

// SessionValid reports whether the region's live session id still
// matches the snapshot taken at Init, and whether the host heartbeat
// has advanced within HeartbeatTimeout.
func (s *Session) SessionValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.freed {
		return false
	}
	if wire.ReadSessionID(s.region) != s.sessionID {
		return false
	}

	hb := wire.ReadHeartbeat(s.region)
	now := time.Now()
	if hb != s.lastHeartbeat {
		s.lastHeartbeat = hb
		s.lastHeartbeatSeen = now
		return true
	}
	return now.Sub(s.lastHeartbeatSeen) <= s.cfg.HeartbeatTimeout
}

// Free releases the session: SessionValid then reports false and
// Subscribe fails. Handles already obtained from it are not affected by
// Free; their Process/MessageDone calls fail only after Unsubscribe.
func (s *Session) Free() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freed = true
}

// Subscribe installs a consumer on queue id, returning NO_SUCH_QUEUE if
// the descriptor is inactive (spec.md §4.2).
func (s *Session) Subscribe(queueID int) (*QueueHandle, error) {
	s.mu.Lock()
	freed := s.freed
	s.mu.Unlock()
	if freed {
		return nil, shimrelay.NewQueueError("session.Subscribe", queueID, shimrelay.CodeInvalidSession, "session freed")
	}

	h, err := wire.ReadHeader(s.region)
	if err != nil {
		return nil, shimrelay.WrapError("session.Subscribe", err)
	}
	qd, ok := wire.ReadQueueDesc(s.region, h, queueID)
	if !ok || !qd.Active {
		return nil, shimrelay.NewQueueError("session.Subscribe", queueID, shimrelay.CodeNoSuchQueue,
			"queue descriptor inactive or out of range")
	}

	s.cfg.Logger.Debug("subscribed", "queue", queueID, "capacity", qd.Capacity)
	return &QueueHandle{
		session:  s,
		queueID:  queueID,
		qd:       qd,
		subbed:   true,
		logger:   s.cfg.Logger,
	}, nil
}
