// Package texture implements the triple-buffered GPU texture pipeline
// (C5): a lock-free four-index state word over a fixed ring of GL
// texture/PBO slots, driven by the frame ingest loop on one side and a
// render driver's bind() call on the other. Grounded statement-for-
// statement on original_source/client/renderers/EGL/texture.c.
package texture

import (
	"github.com/shimrelay/shimrelay"
	"github.com/shimrelay/shimrelay/internal/frame"
	"github.com/shimrelay/shimrelay/internal/gl"
)

// SlotCount is the size of the triple-buffer ring (spec.md §4.5: three
// GL texture/PBO slots addressed by the four-index state word).
const SlotCount = 3

// PlaneInfo describes one plane's pixel geometry and the row stride (in
// pixels) to hand GL_UNPACK_ROW_LENGTH before uploading it.
type PlaneInfo struct {
	Cols           int
	Rows           int
	RowStridePixels int
}

// layoutFor returns the per-plane pixel format, plane geometry, byte
// offsets into the packed pixel buffer, and total buffer size for a
// frame of the given type/dimensions/stride, per the pixel format
// table in spec.md §4.5.
//
// For packed 32bpp formats there is one plane whose row stride is the
// descriptor's stride and whose buffer size is height*stride*4 bytes.
// For YUV420 there are three planes: a full-resolution luma plane
// followed by two quarter-resolution chroma planes at half the luma
// stride, with offsets {0, height*stride, +height*stride/4} — the
// exact arithmetic spec.md §8 scenario 5 checks against a 640x480
// frame (offsets 0, 307200, 384000; total size 460800).
func layoutFor(t frame.Type, width, height, stride uint32) (pf gl.PixelFormat, planes []PlaneInfo, offsets []uintptr, totalSize int, err error) {
	switch t {
	case frame.TypeBGRA:
		pf = gl.PixelFormat{InternalFormat: gl.EnumBGRA, Format: gl.EnumBGRA, DataType: gl.EnumUnsignedByte}
	case frame.TypeRGBA:
		pf = gl.PixelFormat{InternalFormat: gl.EnumBGRA, Format: gl.EnumRGBA, DataType: gl.EnumUnsignedByte}
	case frame.TypeRGBA10:
		pf = gl.PixelFormat{InternalFormat: gl.EnumRGB10A2, Format: gl.EnumRGBA, DataType: gl.EnumUnsignedInt2_10_10_10Rev}
	case frame.TypeYUV420:
		pf = gl.PixelFormat{InternalFormat: gl.EnumRed, Format: gl.EnumRed, DataType: gl.EnumUnsignedByte}
	default:
		return gl.PixelFormat{}, nil, nil, 0, shimrelay.WrapError("texture.layoutFor", shimrelay.ErrUnsupportedFrameType)
	}

	if t != frame.TypeYUV420 {
		planes = []PlaneInfo{{Cols: int(width), Rows: int(height), RowStridePixels: int(stride)}}
		offsets = []uintptr{0}
		totalSize = int(height) * int(stride) * 4
		return pf, planes, offsets, totalSize, nil
	}

	chromaW, chromaH, chromaStride := int(width/2), int(height/2), int(stride/2)
	offY := uintptr(0)
	offU := uintptr(height) * uintptr(stride)
	offV := offU + uintptr(height)*uintptr(stride)/4
	planes = []PlaneInfo{
		{Cols: int(width), Rows: int(height), RowStridePixels: int(stride)},
		{Cols: chromaW, Rows: chromaH, RowStridePixels: chromaStride},
		{Cols: chromaW, Rows: chromaH, RowStridePixels: chromaStride},
	}
	offsets = []uintptr{offY, offU, offV}
	totalSize = int(height)*int(stride) + 2*chromaH*chromaStride
	return pf, planes, offsets, totalSize, nil
}
