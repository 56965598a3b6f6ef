// Package pixel describes the wire order of a strip's colour channels and
// converts between raw frames and per-pixel values.
package pixel

import (
	"errors"
	"fmt"
	"strings"
)

// Channel is a single colour tag of a layout.
type Channel byte

// Known channels. Anything else is kept in place and always carries 0.
const (
	R Channel = 'R'
	G Channel = 'G'
	B Channel = 'B'
	W Channel = 'W'
)

// Known reports whether the channel is one of R, G, B or W.
func (c Channel) Known() bool {
	switch c {
	case R, G, B, W:
		return true
	}
	return false
}

// ErrEmptyLayout is returned for a layout string without any tags.
var ErrEmptyLayout = errors.New("empty channel layout")

// Layout is the ordered channel sequence of one pixel on the wire.
// It is immutable once parsed.
type Layout struct {
	channels []Channel
}

// ParseLayout uppercases s and keeps every tag in input order. Unknown tags
// stay in their position and produce a warning each.
func ParseLayout(s string) (Layout, []string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Layout{}, nil, ErrEmptyLayout
	}
	var warnings []string
	chans := make([]Channel, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := Channel(s[i])
		if !c.Known() {
			warnings = append(warnings, fmt.Sprintf("unknown channel %q at position %d is always 0", s[i], i))
		}
		chans = append(chans, c)
	}
	return Layout{channels: chans}, warnings, nil
}

// MustParseLayout is ParseLayout for constant layouts; it panics on error.
func MustParseLayout(s string) Layout {
	l, _, err := ParseLayout(s)
	if err != nil {
		panic(err)
	}
	return l
}

// BytesPerPixel is the number of bytes one pixel takes on the wire.
func (l Layout) BytesPerPixel() int {
	return len(l.channels)
}

// HasWhite reports whether the layout carries a W channel.
func (l Layout) HasWhite() bool {
	for _, c := range l.channels {
		if c == W {
			return true
		}
	}
	return false
}

// Channels returns a copy of the channel order.
func (l Layout) Channels() []Channel {
	out := make([]Channel, len(l.channels))
	copy(out, l.channels)
	return out
}

func (l Layout) String() string {
	b := make([]byte, len(l.channels))
	for i, c := range l.channels {
		b[i] = byte(c)
	}
	return string(b)
}

// Encode places c into layout order.
func (l Layout) Encode(c Color) Pixel {
	p := make(Pixel, len(l.channels))
	for i, ch := range l.channels {
		p[i] = c.channel(ch)
	}
	return p
}

// Decode reads a pixel in layout order back into a Color. Unknown
// channels are ignored.
func (l Layout) Decode(p Pixel) Color {
	var c Color
	for i, ch := range l.channels {
		if i >= len(p) {
			break
		}
		switch ch {
		case R:
			c.R = p[i]
		case G:
			c.G = p[i]
		case B:
			c.B = p[i]
		case W:
			c.W = p[i]
		}
	}
	return c
}

// DefaultColor is full white on R, G and B with W left dark. It is used
// whenever the strip is turned on without a colour.
func DefaultColor(l Layout) Color {
	return Color{R: 255, G: 255, B: 255}
}
