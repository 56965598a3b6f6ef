package pixel

import (
	"errors"
	"fmt"
)

var (
	// ErrSizeMismatch is matched by a ValidationError for a frame of the wrong length.
	ErrSizeMismatch = errors.New("frame size mismatch")
	// ErrOutOfRange is matched by a ValidationError for a channel value outside 0-255.
	ErrOutOfRange = errors.New("channel value out of range")
)

// ValidationError describes input that was dropped.
type ValidationError struct {
	Kind error
	Got  int
	Want int
}

func (e *ValidationError) Error() string {
	if e.Kind == ErrSizeMismatch {
		return fmt.Sprintf("%v: got %d bytes, expected %d", e.Kind, e.Got, e.Want)
	}
	return fmt.Sprintf("%v: %d", e.Kind, e.Got)
}

func (e *ValidationError) Is(target error) bool {
	return target == e.Kind
}

// Color is a semantic colour; channels a layout lacks are ignored when encoding.
type Color struct {
	R, G, B, W uint8
}

func (c Color) channel(ch Channel) uint8 {
	switch ch {
	case R:
		return c.R
	case G:
		return c.G
	case B:
		return c.B
	case W:
		return c.W
	}
	return 0
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.W)
}

// Pixel holds one byte per layout channel, in layout order.
type Pixel []uint8

// Buffer is the whole strip, one Pixel per LED.
type Buffer []Pixel

// Fill returns n copies of p.
func Fill(n int, p Pixel) Buffer {
	buf := make(Buffer, n)
	for i := range buf {
		px := make(Pixel, len(p))
		copy(px, p)
		buf[i] = px
	}
	return buf
}

// Zero returns an all-dark buffer of n pixels.
func Zero(n int, l Layout) Buffer {
	return Fill(n, make(Pixel, l.BytesPerPixel()))
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := make(Buffer, len(b))
	for i, p := range b {
		px := make(Pixel, len(p))
		copy(px, p)
		out[i] = px
	}
	return out
}

// Equal compares two buffers byte by byte.
func (b Buffer) Equal(o Buffer) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if len(b[i]) != len(o[i]) {
			return false
		}
		for j := range b[i] {
			if b[i][j] != o[i][j] {
				return false
			}
		}
	}
	return true
}

// DecodeFrame splits a raw frame into pixels. The frame must be exactly
// ledCount*BytesPerPixel bytes long.
func DecodeFrame(data []byte, ledCount int, l Layout) (Buffer, error) {
	bpp := l.BytesPerPixel()
	want := ledCount * bpp
	if len(data) != want {
		return nil, &ValidationError{Kind: ErrSizeMismatch, Got: len(data), Want: want}
	}
	buf := make(Buffer, ledCount)
	for i := range buf {
		px := make(Pixel, bpp)
		copy(px, data[i*bpp:(i+1)*bpp])
		buf[i] = px
	}
	return buf, nil
}

// EncodeFrame concatenates the buffer into a raw frame.
func EncodeFrame(b Buffer) []byte {
	n := 0
	for _, p := range b {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range b {
		out = append(out, p...)
	}
	return out
}

// Widen builds a Color from 3 or 4 values in r, g, b, w order. A missing W
// is 0; W is dropped when the layout has no W channel.
func Widen(values []int, l Layout) (Color, error) {
	var v [4]uint8
	for i, x := range values {
		if i >= len(v) {
			break
		}
		if x < 0 || x > 255 {
			return Color{}, &ValidationError{Kind: ErrOutOfRange, Got: x}
		}
		v[i] = uint8(x)
	}
	c := Color{R: v[0], G: v[1], B: v[2]}
	if l.HasWhite() {
		c.W = v[3]
	}
	return c, nil
}

// Clamp limits v to a channel byte.
func Clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
