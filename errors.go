// Package shimrelay implements a low-latency display-mirroring client: a
// shared-memory queue subscriber (SHM-QUEUE) feeding a triple-buffered,
// fence-synchronized GPU texture pipeline (STREAMING-TEX).
package shimrelay

import (
	"errors"
	"fmt"
)

// Code is a high-level error category from the SHM-QUEUE / STREAMING-TEX
// error taxonomy.
type Code string

const (
	CodeInvalidMagic         Code = "invalid magic"
	CodeInvalidSession       Code = "invalid session"
	CodeNoSuchQueue          Code = "no such queue"
	CodeQueueEmpty           Code = "queue empty"
	CodeVersionMismatch      Code = "version mismatch"
	CodeCorrupt              Code = "corrupt ring"
	CodeUnsupportedFrameType Code = "unsupported frame type"
	CodeTexMapFailed         Code = "texture map failed"
	CodeFenceWaitFailed      Code = "fence wait failed"
	CodeOverrun              Code = "producer overrun"
	CodeHostStall            Code = "host stall"
)

// Error is a structured shimrelay error carrying the failing operation,
// its category, and (optionally) the queue it concerns.
type Error struct {
	Op    string // operation that failed, e.g. "session.Init", "texture.Process"
	Queue int    // queue id, -1 if not applicable
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Queue >= 0 {
		return fmt.Sprintf("shimrelay: %s: %s (queue=%d)", e.Op, msg, e.Queue)
	}
	return fmt.Sprintf("shimrelay: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison against another *Error (such as the
// sentinels below), matching on Code only.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a structured error with no queue context.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Queue: -1, Code: code, Msg: msg}
}

// NewQueueError creates a structured error scoped to a specific queue id.
func NewQueueError(op string, queue int, code Code, msg string) *Error {
	return &Error{Op: op, Queue: queue, Code: code, Msg: msg}
}

// WrapError wraps an existing error with shimrelay operation context,
// preserving the category if inner is already a *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if se, ok := inner.(*Error); ok {
		return &Error{Op: op, Queue: se.Queue, Code: se.Code, Msg: se.Msg, Inner: se.Inner}
	}
	return &Error{Op: op, Queue: -1, Code: CodeCorrupt, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or anything it wraps) carries the given Code.
func IsCode(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// Sentinel errors for the common retry-vs-fatal distinction described in
// spec.md §7: callers that only need to branch on category, not operation
// or queue, can compare with errors.Is against these directly.
var (
	ErrInvalidMagic         = NewError("", CodeInvalidMagic, "")
	ErrInvalidSession       = NewError("", CodeInvalidSession, "")
	ErrNoSuchQueue          = NewError("", CodeNoSuchQueue, "")
	ErrQueueEmpty           = NewError("", CodeQueueEmpty, "")
	ErrVersionMismatch      = NewError("", CodeVersionMismatch, "")
	ErrCorrupt              = NewError("", CodeCorrupt, "")
	ErrUnsupportedFrameType = NewError("", CodeUnsupportedFrameType, "")
	ErrTexMapFailed         = NewError("", CodeTexMapFailed, "")
	ErrFenceWaitFailed      = NewError("", CodeFenceWaitFailed, "")
	ErrOverrun              = NewError("", CodeOverrun, "")
	ErrHostStall            = NewError("", CodeHostStall, "")
)
