// Package frame implements frame ingest (C4): decoding frame and cursor
// descriptors off the wire, deriving payload size per pixel format,
// detecting geometry changes, and progress-aware reads of the shared
// FrameBuffer while the host is still writing it.
package frame

import (
	"encoding/binary"
	"fmt"

	shimrelay "github.com/shimrelay/shimrelay"
)

// Type is the pixel format carried by a frame descriptor, matching the
// pixel format table in spec.md §4.5.
type Type uint32

const (
	TypeUnknown Type = iota
	TypeBGRA
	TypeRGBA
	TypeRGBA10
	TypeYUV420
)

func (t Type) String() string {
	switch t {
	case TypeBGRA:
		return "BGRA"
	case TypeRGBA:
		return "RGBA"
	case TypeRGBA10:
		return "RGBA10"
	case TypeYUV420:
		return "YUV420"
	default:
		return "UNKNOWN"
	}
}

// DescriptorSize is the fixed wire size of an encoded Descriptor.
//
//	[0:4)   type            uint32 LE
//	[4:8)   width           uint32 LE
//	[8:12)  height          uint32 LE
//	[12:16) stride          uint32 LE
//	[16:20) pitch           uint32 LE
//	[20:28) payload offset  uint64 LE, relative to region base
const DescriptorSize = 28

// Descriptor is the decoded frame descriptor (spec.md §3).
type Descriptor struct {
	Type          Type
	Width, Height uint32
	Stride, Pitch uint32
	PayloadOffset uint64
}

// DecodeDescriptor decodes a Descriptor from a message payload (spec.md
// §4.4 step 1, operating on the bytes session.Process handed back).
func DecodeDescriptor(payload []byte) (Descriptor, error) {
	if len(payload) < DescriptorSize {
		return Descriptor{}, shimrelay.NewError("frame.DecodeDescriptor", shimrelay.CodeCorrupt,
			fmt.Sprintf("payload too small: %d < %d", len(payload), DescriptorSize))
	}
	return Descriptor{
		Type:          Type(binary.LittleEndian.Uint32(payload[0:])),
		Width:         binary.LittleEndian.Uint32(payload[4:]),
		Height:        binary.LittleEndian.Uint32(payload[8:]),
		Stride:        binary.LittleEndian.Uint32(payload[12:]),
		Pitch:         binary.LittleEndian.Uint32(payload[16:]),
		PayloadOffset: binary.LittleEndian.Uint64(payload[20:]),
	}, nil
}

// EncodeDescriptor encodes d, the inverse of DecodeDescriptor. Used by
// tests to construct frame messages; a real
// deployment only ever decodes, since the host is the producer.
func EncodeDescriptor(d Descriptor) []byte {
	buf := make([]byte, DescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(d.Type))
	binary.LittleEndian.PutUint32(buf[4:], d.Width)
	binary.LittleEndian.PutUint32(buf[8:], d.Height)
	binary.LittleEndian.PutUint32(buf[12:], d.Stride)
	binary.LittleEndian.PutUint32(buf[16:], d.Pitch)
	binary.LittleEndian.PutUint64(buf[20:], d.PayloadOffset)
	return buf
}

// DataSize derives the pixel payload size for d per spec.md §4.4 step 1:
// 32bpp formats are height*pitch; YUV420 is height*width*3/2. An unknown
// type returns ErrUnsupportedFrameType, fatal for the message per
// spec.md §7.
func DataSize(d Descriptor) (uint64, error) {
	switch d.Type {
	case TypeBGRA, TypeRGBA, TypeRGBA10:
		return uint64(d.Height) * uint64(d.Pitch), nil
	case TypeYUV420:
		return uint64(d.Height) * uint64(d.Width) * 3 / 2, nil
	default:
		return 0, shimrelay.ErrUnsupportedFrameType
	}
}

// GeometryTracker records the last-seen (width, height) so frame ingest
// can detect a source resize (spec.md §4.4 step 2) without the caller
// keeping its own state.
type GeometryTracker struct {
	width, height uint32
	initialized   bool
}

// Update records (w, h) and reports whether it differs from the
// previously recorded geometry (or this is the first observation).
func (g *GeometryTracker) Update(w, h uint32) bool {
	changed := !g.initialized || w != g.width || h != g.height
	g.width, g.height = w, h
	g.initialized = true
	return changed
}

// Size returns the last-recorded geometry.
func (g *GeometryTracker) Size() (width, height uint32) {
	return g.width, g.height
}
