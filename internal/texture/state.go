package texture

import "sync/atomic"

// stateWord packs the four ring indices spec.md §4.5 describes —
// w (write/update target), u (uploaded, awaiting fence), s (synced,
// fence signaled), d (displayed, bound by the renderer) — into one
// atomically-addressed uint32, one byte per index. This is the same
// single-word-CAS idiom the teacher uses for its per-tag TagState
// (internal/queue/runner.go), generalized from a two-state flag to a
// four-position ring cursor.
//
// Readers and writers never take a lock to inspect or advance the
// ring: update() steps w one slot at a time guarded against u,
// process() steps u one slot at a time guarded against s and d, and
// bind() steps s past a signaled fence and then steps d one slot at a
// time guarded against s (spec.md invariants 1-3). Every advance moves
// its index by exactly one ring position — never jumping ahead to
// another index's current value — so a producer running ahead of the
// GPU pipeline loses at most the slot it collides on, not whatever
// intermediate slots a jump would skip.
type stateWord struct {
	v atomic.Uint32
}

func packState(w, u, s, d uint8) uint32 {
	return uint32(w) | uint32(u)<<8 | uint32(s)<<16 | uint32(d)<<24
}

func unpackState(v uint32) (w, u, s, d uint8) {
	return uint8(v), uint8(v >> 8), uint8(v >> 16), uint8(v >> 24)
}

func (sw *stateWord) Load() (w, u, s, d uint8) {
	return unpackState(sw.v.Load())
}

func (sw *stateWord) Store(w, u, s, d uint8) {
	sw.v.Store(packState(w, u, s, d))
}

func next(i uint8) uint8 {
	return uint8((int(i) + 1) % SlotCount)
}

// advanceW returns the slot the caller should write into — the
// current (pre-advance) w — and steps the persisted w to next(w),
// unless doing so would collide with u (the slot the consumer side
// has not yet picked up), in which case it reports a collision so the
// caller can count it as an overrun (spec.md §8 scenario 4) without
// touching the word. Grounded on egl_texture_update_from_frame,
// original_source/client/renderers/EGL/texture.c:350-376: the write
// target is the index read at entry, not the index computed after
// advancing.
func (sw *stateWord) advanceW() (writeSlot uint8, collided bool) {
	for {
		old := sw.v.Load()
		w, u, s, d := unpackState(old)
		nw := next(w)
		if nw == u {
			return w, true
		}
		if sw.v.CompareAndSwap(old, packState(nw, u, s, d)) {
			return w, false
		}
	}
}

// advanceU returns the slot the caller should upload — the current
// (pre-advance) u — and steps the persisted u to next(u), unless
// w == u (nothing new has been written since the last advance) or
// advancing u would collide with s or d (spec.md invariant 3).
// Grounded on egl_texture_process, texture.c:378-413: upload always
// targets u itself, one ring position at a time, never jumping ahead
// to w — an intermediate frame must be uploaded in its own Process
// call, not skipped.
func (sw *stateWord) advanceU() (uploadSlot uint8, advanced bool) {
	for {
		old := sw.v.Load()
		w, u, s, d := unpackState(old)
		if w == u {
			return u, false
		}
		nu := next(u)
		if nu == s || nu == d {
			return u, false
		}
		if sw.v.CompareAndSwap(old, packState(w, nu, s, d)) {
			return u, true
		}
	}
}

// fenceSlot returns the slot whose fence bind() should wait on — the
// current s — without advancing anything. Grounded on
// egl_texture_bind, texture.c:418-429: the wait targets whatever s
// already is; s only moves once the wait on that fence is confirmed
// signaled.
func (sw *stateWord) fenceSlot() uint8 {
	_, _, s, _ := sw.Load()
	return s
}

// advanceSPast steps the persisted s to next(s). Call only after a
// ClientWaitSync on fenceSlot()'s fence has returned
// AlreadySignaled/ConditionSatisfied — texture.c:441-453's fallthrough
// out of the wait switch before the slot advance.
func (sw *stateWord) advanceSPast() {
	for {
		old := sw.v.Load()
		w, u, s, d := unpackState(old)
		ns := next(s)
		if sw.v.CompareAndSwap(old, packState(w, u, ns, d)) {
			return
		}
	}
}

// advanceD steps d to next(d), but only when d != s and next(d) != s
// — d must stay strictly one step behind s, never catching up to the
// slot the sync stage currently owns. Grounded on texture.c:454-459
// ("if (s.d != s.s && nextd != s.s)"); returns the slot bind() should
// actually display, which is next(d) when advanced and the unchanged
// d otherwise.
func (sw *stateWord) advanceD() (displaySlot uint8, advanced bool) {
	for {
		old := sw.v.Load()
		w, u, s, d := unpackState(old)
		if d == s {
			return d, false
		}
		nd := next(d)
		if nd == s {
			return d, false
		}
		if sw.v.CompareAndSwap(old, packState(w, u, s, nd)) {
			return nd, true
		}
	}
}
