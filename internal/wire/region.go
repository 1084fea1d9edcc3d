package wire

// Region is an in-memory stand-in for a real hypervisor-shared mapping,
// used by tests. It plays the producer's
// role: allocating the header/descriptor/slab layout and publishing
// messages the way the host would. A real deployment instead opens an
// existing mapped region and never constructs one.
//
// Adapted from the teacher's sharded in-memory backend (backend/mem.go):
// both are "a fixed-size byte slice exposed for read/write" at their
// core (Region itself takes no lock), but Region is addressed by the fixed wire
// layout above rather than a generic ReadAt/WriteAt interface, since
// every write here has a specific structural meaning (publish a slot,
// bump a producer index, rotate a session id).
type Region struct {
	buf        []byte
	queueDescs int
	slabCap    []uint32 // capacity per queue, indexed by queue id
	arenaNext  uint64   // next free offset in the payload arena
}

// QueueSpec describes one queue to allocate in NewRegion.
type QueueSpec struct {
	Capacity      uint32 // number of slots (ring size N)
	MaxPayloadLen uint32 // max payload bytes per message, for arena sizing
}

// NewRegion allocates a region with a header and len(queues) queue
// descriptors, each with its own slab, followed by one payload arena
// shared by all queues and sized to the sum of Capacity*MaxPayloadLen
// over every queue. Publish fills the arena front to back for whichever
// queue it is called on; arena space is never reused.
func NewRegion(sessionID uint64, queues []QueueSpec) *Region {
	headerEnd := uint64(HeaderSize)
	descEnd := headerEnd + uint64(len(queues))*QueueDescSize

	slabOffs := make([]uint64, len(queues))
	cursor := descEnd
	for i, q := range queues {
		slabOffs[i] = cursor
		cursor += uint64(q.Capacity) * SlotSize
	}
	arenaStart := cursor
	arenaSize := uint64(0)
	for _, q := range queues {
		arenaSize += uint64(q.Capacity) * uint64(q.MaxPayloadLen)
	}

	total := arenaStart + arenaSize
	buf := make([]byte, total)

	h := Header{
		Magic:           Magic,
		Version:         Version,
		SessionID:       sessionID,
		Heartbeat:       0,
		QueueCount:      uint32(len(queues)),
		QueueDescOffset: headerEnd,
	}
	WriteHeader(buf, h)

	r := &Region{buf: buf, queueDescs: len(queues), arenaNext: arenaStart}
	for i, q := range queues {
		win := buf[headerEnd+uint64(i)*QueueDescSize : headerEnd+uint64(i+1)*QueueDescSize]
		putU32 := func(off int, v uint32) {
			win[off] = byte(v)
			win[off+1] = byte(v >> 8)
			win[off+2] = byte(v >> 16)
			win[off+3] = byte(v >> 24)
		}
		putU64 := func(off int, v uint64) {
			for b := 0; b < 8; b++ {
				win[off+b] = byte(v >> (8 * b))
			}
		}
		putU32(qdOffActive, 1)
		putU32(qdOffCapacity, q.Capacity)
		putU32(qdOffProducer, 0)
		putU32(qdOffConsumer, 0)
		putU64(qdOffAckBitmap, 0)
		putU64(qdOffSlabOff, slabOffs[i])
		putU64(qdOffSlabLen, uint64(q.Capacity)*SlotSize)
	}
	return r
}

// Bytes returns the full region as a byte slice, the same shape a real
// mmap'd region would hand to session.Init.
func (r *Region) Bytes() []byte { return r.buf }

// Header decodes the current header (callers needing the live session id
// should use wire.ReadSessionID on Bytes() instead).
func (r *Region) Header() Header {
	h, _ := ReadHeader(r.buf)
	return h
}

// Reinit rewrites the session id, simulating a host restart
// (spec.md §8 scenario 6).
func (r *Region) Reinit(sessionID uint64) {
	h := r.Header()
	h.SessionID = sessionID
	WriteHeader(r.buf, h)
}

// Deactivate marks queue id inactive, simulating "descriptor not yet
// active" (spec.md §8 scenario 2).
func (r *Region) Deactivate(id int) {
	h := r.Header()
	win, ok := queueDescAt(r.buf, h, id)
	if !ok {
		return
	}
	win[qdOffActive] = 0
}

// Activate marks queue id active.
func (r *Region) Activate(id int) {
	h := r.Header()
	win, ok := queueDescAt(r.buf, h, id)
	if !ok {
		return
	}
	win[qdOffActive] = 1
}

// Publish writes payload into the shared arena and advances the queue's
// producer index, playing the host's role. It returns false if the ring
// is full (next producer index would collide with the consumer index).
func (r *Region) Publish(id int, userData uint32, payload []byte) bool {
	h := r.Header()
	qd, ok := ReadQueueDesc(r.buf, h, id)
	if !ok {
		return false
	}
	prod, _ := ReadProducerIndex(r.buf, h, id)
	cons, _ := ReadConsumerIndex(r.buf, h, id)
	next := (prod + 1) % qd.Capacity
	if next == cons {
		return false // ring full
	}

	arenaEnd := r.arenaNext + uint64(len(payload))
	if arenaEnd > uint64(len(r.buf)) {
		return false
	}
	copy(r.buf[r.arenaNext:arenaEnd], payload)

	WriteSlot(r.buf, qd, prod, Slot{
		PayloadSize:   uint32(len(payload)),
		UserData:      userData,
		PayloadOffset: r.arenaNext,
	})
	r.arenaNext = arenaEnd

	StoreProducerIndex(r.buf, h, id, next)
	return true
}

// Heartbeat bumps the host heartbeat counter by one.
func (r *Region) Heartbeat() {
	h := r.Header()
	atomicAddHeartbeat(r.buf, h)
}

func atomicAddHeartbeat(region []byte, h Header) {
	cur := ReadHeartbeat(region)
	hh := h
	hh.Heartbeat = cur + 1
	WriteHeader(region, hh)
}
