package frame

import (
	"encoding/binary"
	"fmt"

	shimrelay "github.com/shimrelay/shimrelay"
)

// CursorType distinguishes cursor shape encodings (spec.md §3).
type CursorType uint32

const (
	CursorColor CursorType = iota
	CursorMonochrome
	CursorMaskedColor
)

// Cursor update flags, bitmask packed into the wire's flags word.
const (
	CursorFlagVisible uint32 = 1 << iota
	CursorFlagPosition
	CursorFlagShape
)

// CursorDescriptorHeaderSize is the fixed wire size of a cursor
// descriptor's header, before any trailing shape bytes.
//
//	[0:4)   flags   uint32 LE (visible/position/shape bitmask)
//	[4:8)   x       int32 LE
//	[8:12)  y       int32 LE
//	[12:16) type    uint32 LE
//	[16:20) width   uint32 LE
//	[20:24) height  uint32 LE
//	[24:28) pitch   uint32 LE
const CursorDescriptorHeaderSize = 28

// CursorDescriptor is the decoded cursor update (spec.md §3).
type CursorDescriptor struct {
	Flags               uint32
	X, Y                int32
	Type                CursorType
	Width, Height, Pitch uint32
	ShapeBytes          []byte // present only when Flags&CursorFlagShape != 0
}

func (c CursorDescriptor) Visible() bool  { return c.Flags&CursorFlagVisible != 0 }
func (c CursorDescriptor) HasPosition() bool { return c.Flags&CursorFlagPosition != 0 }
func (c CursorDescriptor) HasShape() bool { return c.Flags&CursorFlagShape != 0 }

// DecodeCursorDescriptor decodes a cursor message payload. When the
// shape flag is set, the remaining payload bytes are the shape bitmap
// (length height*pitch for COLOR/MASKED_COLOR, or the monochrome
// AND+XOR mask pair for MONOCHROME — sized by the renderer driver that
// consumes it, not validated here).
func DecodeCursorDescriptor(payload []byte) (CursorDescriptor, error) {
	if len(payload) < CursorDescriptorHeaderSize {
		return CursorDescriptor{}, shimrelay.NewError("frame.DecodeCursorDescriptor", shimrelay.CodeCorrupt,
			fmt.Sprintf("payload too small: %d < %d", len(payload), CursorDescriptorHeaderSize))
	}
	c := CursorDescriptor{
		Flags:  binary.LittleEndian.Uint32(payload[0:]),
		X:      int32(binary.LittleEndian.Uint32(payload[4:])),
		Y:      int32(binary.LittleEndian.Uint32(payload[8:])),
		Type:   CursorType(binary.LittleEndian.Uint32(payload[12:])),
		Width:  binary.LittleEndian.Uint32(payload[16:]),
		Height: binary.LittleEndian.Uint32(payload[20:]),
		Pitch:  binary.LittleEndian.Uint32(payload[24:]),
	}
	if c.Flags&CursorFlagShape != 0 {
		c.ShapeBytes = payload[CursorDescriptorHeaderSize:]
	}
	return c, nil
}

// EncodeCursorDescriptor is the inverse of DecodeCursorDescriptor, used
// by tests.
func EncodeCursorDescriptor(c CursorDescriptor) []byte {
	buf := make([]byte, CursorDescriptorHeaderSize, CursorDescriptorHeaderSize+len(c.ShapeBytes))
	binary.LittleEndian.PutUint32(buf[0:], c.Flags)
	binary.LittleEndian.PutUint32(buf[4:], uint32(c.X))
	binary.LittleEndian.PutUint32(buf[8:], uint32(c.Y))
	binary.LittleEndian.PutUint32(buf[12:], uint32(c.Type))
	binary.LittleEndian.PutUint32(buf[16:], c.Width)
	binary.LittleEndian.PutUint32(buf[20:], c.Height)
	binary.LittleEndian.PutUint32(buf[24:], c.Pitch)
	buf = append(buf, c.ShapeBytes...)
	return buf
}
