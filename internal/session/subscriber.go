package session

import (
	"sync"

	shimrelay "github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/logging"
	"github.com/shimrelay/shimrelay/internal/wire"
)

// Message is a delivered, read-only borrow of one queue slot, valid
// between Process and the matching MessageDone (spec.md §3, §4.3).
type Message struct {
	Seq     uint64
	UserData uint32
	Payload []byte
}

// handleState mirrors the teacher's per-tag TagState machine
// (internal/queue/runner.go TagStateInFlightFetch/Owned/InFlightCommit),
// generalized from "kernel owns the tag / userspace owns the tag" to
// "producer owns the slot / consumer owns the slot": a handle is either
// idle (no outstanding borrow) or owned (a message has been delivered
// and not yet released).
type handleState int

const (
	stateIdle handleState = iota
	stateOwned
)

// QueueHandle is a subscribed consumer cursor on one queue.
type QueueHandle struct {
	session *Session
	queueID int
	qd      wire.QueueDesc
	logger  *logging.Logger

	mu      sync.Mutex
	subbed  bool
	st      handleState
	curSlot uint32
	nextSeq uint64
	cur     Message
}

// Unsubscribe tears down the handle; further Process/MessageDone calls
// fail.
func (h *QueueHandle) Unsubscribe() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subbed = false
}

// Process returns the next message in order, or ErrQueueEmpty if the
// producer and consumer indices are equal. It is non-blocking and does
// not mutate the ring; only MessageDone advances the consumer index.
// Calling Process again before MessageDone returns the same
// already-borrowed message (idempotent peek), matching spec.md §4.3's
// "between process and message_done the payload slice is valid and
// immutable" guarantee.
func (h *QueueHandle) Process() (*Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.subbed {
		return nil, shimrelay.NewQueueError("session.Process", h.queueID, shimrelay.CodeNoSuchQueue, "handle unsubscribed")
	}
	if h.st == stateOwned {
		msg := h.cur
		return &msg, nil
	}

	region := h.session.region
	hdr, err := wire.ReadHeader(region)
	if err != nil {
		return nil, shimrelay.WrapError("session.Process", err)
	}

	prod, ok := wire.ReadProducerIndex(region, hdr, h.queueID)
	if !ok {
		return nil, shimrelay.NewQueueError("session.Process", h.queueID, shimrelay.CodeCorrupt, "producer index out of range")
	}
	cons, ok := wire.ReadConsumerIndex(region, hdr, h.queueID)
	if !ok {
		return nil, shimrelay.NewQueueError("session.Process", h.queueID, shimrelay.CodeCorrupt, "consumer index out of range")
	}
	if prod == cons {
		return nil, shimrelay.ErrQueueEmpty
	}

	slot, ok := wire.ReadSlot(region, h.qd, cons)
	if !ok {
		return nil, shimrelay.NewQueueError("session.Process", h.queueID, shimrelay.CodeCorrupt, "slot index out of range")
	}
	payload, ok := wire.Payload(region, slot)
	if !ok {
		return nil, shimrelay.NewQueueError("session.Process", h.queueID, shimrelay.CodeCorrupt, "payload offset/len out of range")
	}

	msg := Message{Seq: h.nextSeq, UserData: slot.UserData, Payload: payload}
	h.cur = msg
	h.curSlot = cons
	h.st = stateOwned

	out := msg
	return &out, nil
}

// MessageDone releases the current message exactly once: it advances
// the consumer index and returns the handle to stateIdle. Calling it
// without an outstanding Process borrow is a protocol violation and
// returns an error rather than corrupting the ring (spec.md §4.3
// discipline rule 1).
func (h *QueueHandle) MessageDone() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.subbed {
		return shimrelay.NewQueueError("session.MessageDone", h.queueID, shimrelay.CodeNoSuchQueue, "handle unsubscribed")
	}
	if h.st != stateOwned {
		return shimrelay.NewQueueError("session.MessageDone", h.queueID, shimrelay.CodeCorrupt,
			"message_done called with no outstanding process borrow")
	}

	region := h.session.region
	hdr, err := wire.ReadHeader(region)
	if err != nil {
		return shimrelay.WrapError("session.MessageDone", err)
	}
	next := (h.curSlot + 1) % h.qd.Capacity
	if !wire.StoreConsumerIndex(region, hdr, h.queueID, next) {
		return shimrelay.NewQueueError("session.MessageDone", h.queueID, shimrelay.CodeCorrupt, "failed to publish consumer index")
	}

	h.nextSeq++
	h.st = stateIdle
	h.cur = Message{}
	return nil
}
