// Package wire defines the fixed, little-endian on-region layout of the
// shared memory queue region (spec component C1): header, per-queue
// descriptors, and per-queue payload slots. The layout must be bit-exact
// to what the host (producer) writes; this package never reinterprets
// the region as anything other than a plain byte slice, and validates
// every offset/length before it is used to slice that byte slice.
package wire

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Magic is the fixed sentinel the header must begin with. A mismatch is
// fatal for Init (spec.md §4.1, §7 INVALID_MAGIC).
var Magic = [4]byte{'S', 'H', 'M', 'Q'}

// Version is the layout version this package implements. A region
// advertising a different version fails Init with VERSION_MISMATCH.
const Version = 1

// Header field byte offsets and total size. Layout:
//
//	[0:4)   magic
//	[4:8)   version            uint32 LE
//	[8:16)  session id         uint64 LE, monotonic, changes on host (re)init
//	[16:24) heartbeat counter  uint64 LE, incremented by host liveness ticks
//	[24:28) queue count        uint32 LE
//	[28:32) reserved/padding
//	[32:40) queue descriptor array offset, relative to region base
const (
	offMagic            = 0
	offVersion          = 4
	offSessionID        = 8
	offHeartbeat        = 16
	offQueueCount       = 24
	offQueueDescOffset  = 32
	HeaderSize          = 40
)

// compile-time documentation of the exact wire size of the header.
var _ [HeaderSize]byte = [unsafe.Sizeof(struct {
	magic     [4]byte
	version   uint32
	sessionID uint64
	heartbeat uint64
	qcount    uint32
	_         uint32
	qdescOff  uint64
}{})]byte{}

// Header is the decoded, Go-native view of the region header. It is
// snapshotted by session.Init; SessionID and Heartbeat must be re-read
// live from the region thereafter (see ReadSessionID, ReadHeartbeat)
// since the host updates them concurrently.
type Header struct {
	Magic           [4]byte
	Version         uint32
	SessionID       uint64
	Heartbeat       uint64
	QueueCount      uint32
	QueueDescOffset uint64
}

// ReadHeader decodes the header at the start of region. It performs no
// validation beyond requiring region to be at least HeaderSize bytes;
// callers should follow up with Header.Validate.
func ReadHeader(region []byte) (Header, error) {
	if len(region) < HeaderSize {
		return Header{}, fmt.Errorf("wire: region too small for header: %d < %d", len(region), HeaderSize)
	}
	var h Header
	copy(h.Magic[:], region[offMagic:offMagic+4])
	h.Version = binary.LittleEndian.Uint32(region[offVersion:])
	h.SessionID = binary.LittleEndian.Uint64(region[offSessionID:])
	h.Heartbeat = binary.LittleEndian.Uint64(region[offHeartbeat:])
	h.QueueCount = binary.LittleEndian.Uint32(region[offQueueCount:])
	h.QueueDescOffset = binary.LittleEndian.Uint64(region[offQueueDescOffset:])
	return h, nil
}

// ReadSessionID re-reads the live session id directly from region,
// bypassing any cached Header. The host writes this field with release
// semantics on (re)init; an atomic load here is the matching acquire.
func ReadSessionID(region []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&region[offSessionID])))
}

// ReadHeartbeat re-reads the live heartbeat counter.
func ReadHeartbeat(region []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&region[offHeartbeat])))
}

// WriteHeader encodes h into region[0:HeaderSize). Used only by the
// in-memory region builder (internal/wire/region.go) for tests; a real
// shared region is written exclusively by the host.
func WriteHeader(region []byte, h Header) {
	copy(region[offMagic:offMagic+4], h.Magic[:])
	binary.LittleEndian.PutUint32(region[offVersion:], h.Version)
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&region[offSessionID])), h.SessionID)
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&region[offHeartbeat])), h.Heartbeat)
	binary.LittleEndian.PutUint32(region[offQueueCount:], h.QueueCount)
	binary.LittleEndian.PutUint64(region[offQueueDescOffset:], h.QueueDescOffset)
}

// Validate checks the header's magic and version, returning a plain
// error that names the failed check (it carries no shimrelay Code).
// It does not check queue bounds;
// callers validate each QueueDesc independently as they subscribe.
func (h Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("invalid magic: got %q want %q", h.Magic, Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("version mismatch: got %d want %d", h.Version, Version)
	}
	return nil
}

// QueueDescSize is the fixed wire size of one QueueDesc entry.
//
//	[0:4)   active flag        uint32 LE, 0 = inactive
//	[4:8)   capacity (N)       uint32 LE, power-of-two recommended
//	[8:12)  producer index     uint32 LE, written by producer
//	[12:16) consumer index     uint32 LE, written by consumer
//	[16:24) pending-ack bitmap uint64 LE, bit i set => slot i unacked
//	[24:32) slab offset        uint64 LE, relative to region base
//	[32:40) slab length        uint64 LE, total bytes of this queue's slab
const QueueDescSize = 40

const (
	qdOffActive    = 0
	qdOffCapacity  = 4
	qdOffProducer  = 8
	qdOffConsumer  = 12
	qdOffAckBitmap = 16
	qdOffSlabOff   = 24
	qdOffSlabLen   = 32
)

// QueueDesc is the decoded view of one queue's descriptor.
type QueueDesc struct {
	Active    bool
	Capacity  uint32
	SlabOff   uint64
	SlabLen   uint64
}

// queueDescAt returns the byte window for queue descriptor id within
// region, given the header's QueueDescOffset and QueueCount. Returns
// ErrCorrupt-shaped error (via the bool) if id is out of range or the
// window would run past the region.
func queueDescAt(region []byte, h Header, id int) ([]byte, bool) {
	if id < 0 || uint32(id) >= h.QueueCount {
		return nil, false
	}
	start := h.QueueDescOffset + uint64(id)*QueueDescSize
	end := start + QueueDescSize
	if end > uint64(len(region)) {
		return nil, false
	}
	return region[start:end], true
}

// ReadQueueDesc decodes queue descriptor id from region. ok is false if
// id is out of range or the descriptor window exceeds the region
// (CORRUPT, spec.md §4.1).
func ReadQueueDesc(region []byte, h Header, id int) (QueueDesc, bool) {
	win, ok := queueDescAt(region, h, id)
	if !ok {
		return QueueDesc{}, false
	}
	active := binary.LittleEndian.Uint32(win[qdOffActive:]) != 0
	return QueueDesc{
		Active:   active,
		Capacity: binary.LittleEndian.Uint32(win[qdOffCapacity:]),
		SlabOff:  binary.LittleEndian.Uint64(win[qdOffSlabOff:]),
		SlabLen:  binary.LittleEndian.Uint64(win[qdOffSlabLen:]),
	}, true
}

// ReadProducerIndex atomically loads the live producer index for queue id.
func ReadProducerIndex(region []byte, h Header, id int) (uint32, bool) {
	win, ok := queueDescAt(region, h, id)
	if !ok {
		return 0, false
	}
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&win[qdOffProducer]))), true
}

// ReadConsumerIndex atomically loads the live consumer index for queue id.
func ReadConsumerIndex(region []byte, h Header, id int) (uint32, bool) {
	win, ok := queueDescAt(region, h, id)
	if !ok {
		return 0, false
	}
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&win[qdOffConsumer]))), true
}

// StoreConsumerIndex publishes a new consumer index for queue id with
// release semantics (message_done's advance, spec.md §4.3).
func StoreConsumerIndex(region []byte, h Header, id int, v uint32) bool {
	win, ok := queueDescAt(region, h, id)
	if !ok {
		return false
	}
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&win[qdOffConsumer])), v)
	return true
}

// StoreProducerIndex publishes a new producer index; only ever used by
// the in-memory region builder standing in for the host.
func StoreProducerIndex(region []byte, h Header, id int, v uint32) bool {
	win, ok := queueDescAt(region, h, id)
	if !ok {
		return false
	}
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&win[qdOffProducer])), v)
	return true
}

// WriteQueueDesc encodes qd into queue descriptor id, the write-side
// counterpart of ReadQueueDesc, for callers standing up a region by
// hand rather than going through NewRegion's fixed queue/arena layout.
func WriteQueueDesc(region []byte, h Header, id int, qd QueueDesc) bool {
	win, ok := queueDescAt(region, h, id)
	if !ok {
		return false
	}
	active := uint32(0)
	if qd.Active {
		active = 1
	}
	binary.LittleEndian.PutUint32(win[qdOffActive:], active)
	binary.LittleEndian.PutUint32(win[qdOffCapacity:], qd.Capacity)
	binary.LittleEndian.PutUint32(win[qdOffProducer:], 0)
	binary.LittleEndian.PutUint32(win[qdOffConsumer:], 0)
	binary.LittleEndian.PutUint64(win[qdOffAckBitmap:], 0)
	binary.LittleEndian.PutUint64(win[qdOffSlabOff:], qd.SlabOff)
	binary.LittleEndian.PutUint64(win[qdOffSlabLen:], qd.SlabLen)
	return true
}

// SetQueueActive flips only the active flag of queue descriptor id,
// leaving producer/consumer indices untouched (spec.md §8 scenario 2:
// a host activating a previously-inactive queue mid-stream must not
// reset indices a producer may already have advanced).
func SetQueueActive(region []byte, h Header, id int, active bool) bool {
	win, ok := queueDescAt(region, h, id)
	if !ok {
		return false
	}
	v := uint32(0)
	if active {
		v = 1
	}
	binary.LittleEndian.PutUint32(win[qdOffActive:], v)
	return true
}

// SlotSize is the fixed wire size of one message slot.
//
//	[0:4)   payload size   uint32 LE
//	[4:8)   user data word uint32 LE (flags)
//	[8:16)  payload offset uint64 LE, relative to region base
const SlotSize = 16

// Slot is the decoded view of one message slot.
type Slot struct {
	PayloadSize   uint32
	UserData      uint32
	PayloadOffset uint64
}

// slotAt returns the byte window for slot index i of queue qd within
// region, validating offset+len <= len(region) per spec.md §4.1.
func slotAt(region []byte, qd QueueDesc, i uint32) ([]byte, bool) {
	if qd.Capacity == 0 || i >= qd.Capacity {
		return nil, false
	}
	start := qd.SlabOff + uint64(i)*SlotSize
	end := start + SlotSize
	if end > qd.SlabOff+qd.SlabLen || end > uint64(len(region)) {
		return nil, false
	}
	return region[start:end], true
}

// ReadSlot decodes slot i of queue qd.
func ReadSlot(region []byte, qd QueueDesc, i uint32) (Slot, bool) {
	win, ok := slotAt(region, qd, i)
	if !ok {
		return Slot{}, false
	}
	return Slot{
		PayloadSize:   binary.LittleEndian.Uint32(win[0:]),
		UserData:      binary.LittleEndian.Uint32(win[4:]),
		PayloadOffset: binary.LittleEndian.Uint64(win[8:]),
	}, true
}

// WriteSlot encodes a slot; used only by the in-memory region builder.
func WriteSlot(region []byte, qd QueueDesc, i uint32, s Slot) bool {
	win, ok := slotAt(region, qd, i)
	if !ok {
		return false
	}
	binary.LittleEndian.PutUint32(win[0:], s.PayloadSize)
	binary.LittleEndian.PutUint32(win[4:], s.UserData)
	binary.LittleEndian.PutUint64(win[8:], s.PayloadOffset)
	return true
}

// Payload returns the byte slice for a slot's payload, validating
// offset+len <= len(region) before slicing (spec.md §4.1 CORRUPT rule).
func Payload(region []byte, s Slot) ([]byte, bool) {
	end := s.PayloadOffset + uint64(s.PayloadSize)
	if end > uint64(len(region)) {
		return nil, false
	}
	return region[s.PayloadOffset:end], true
}
