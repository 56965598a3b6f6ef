// Package effects holds the built-in procedural strip effects. Every
// effect renders one static frame per call.
package effects

import (
	"stripctl/internal/pixel"
)

// None is the solid-colour pseudo effect. It is always registered.
const None = "none"

// Params are effect specific options, opaque to the engine.
type Params map[string]string

// Input is everything an effect may look at.
type Input struct {
	LEDCount int
	Layout   pixel.Layout
	Color    pixel.Color // stored base colour, or the layout default
	Params   Params
}

// RenderFunc produces one frame.
type RenderFunc func(in Input) pixel.Buffer

// Descriptor names a render function.
type Descriptor struct {
	ID     string
	Render RenderFunc
}

// Builtins returns the built-in effects in registration order.
func Builtins() []Descriptor {
	return []Descriptor{
		{ID: None, Render: Solid},
		{ID: "rainbow", Render: Rainbow},
		{ID: "chase", Render: Chase},
		{ID: "fade", Render: Fade},
		{ID: "strobe", Render: Strobe},
		{ID: "color_wipe", Render: ColorWipe},
		{ID: "theater_chase", Render: TheaterChase},
		{ID: "rainbow_cycle", Render: RainbowCycle},
	}
}

var white = pixel.Color{R: 255, G: 255, B: 255}

// Solid fills the strip with the input colour.
func Solid(in Input) pixel.Buffer {
	return pixel.Fill(in.LEDCount, in.Layout.Encode(in.Color))
}

// Rainbow spreads one full hue turn over the strip.
func Rainbow(in Input) pixel.Buffer {
	buf := pixel.Zero(in.LEDCount, in.Layout)
	for i := range buf {
		hue := (i * 360 / in.LEDCount) % 360
		r, g, b := HSV(hue, 100, 100)
		buf[i] = in.Layout.Encode(rgb(r, g, b))
	}
	return buf
}

// RainbowCycle spreads the 256 step colour wheel over the strip.
func RainbowCycle(in Input) pixel.Buffer {
	buf := pixel.Zero(in.LEDCount, in.Layout)
	for i := range buf {
		pos := (i * 256 / in.LEDCount) % 256
		r, g, b := Wheel(pos)
		buf[i] = in.Layout.Encode(rgb(r, g, b))
	}
	return buf
}

// Chase lights every third LED white.
func Chase(in Input) pixel.Buffer {
	return stride(in, 3, white)
}

// TheaterChase lights every third LED in the current colour.
func TheaterChase(in Input) pixel.Buffer {
	return stride(in, 3, in.Color)
}

// ColorWipe lights the first ten LEDs in the current colour.
func ColorWipe(in Input) pixel.Buffer {
	buf := pixel.Zero(in.LEDCount, in.Layout)
	p := in.Layout.Encode(in.Color)
	for i := 0; i < min(10, in.LEDCount); i++ {
		copy(buf[i], p)
	}
	return buf
}

// Fade sets every channel, white included, to half intensity.
func Fade(in Input) pixel.Buffer {
	return pixel.Fill(in.LEDCount, in.Layout.Encode(pixel.Color{R: 128, G: 128, B: 128, W: 128}))
}

// Strobe is a single white flash. Toggling it over time is up to the caller.
func Strobe(in Input) pixel.Buffer {
	return pixel.Fill(in.LEDCount, in.Layout.Encode(white))
}

func stride(in Input, step int, c pixel.Color) pixel.Buffer {
	buf := pixel.Zero(in.LEDCount, in.Layout)
	p := in.Layout.Encode(c)
	for i := 0; i < in.LEDCount; i += step {
		copy(buf[i], p)
	}
	return buf
}

func rgb(r, g, b int) pixel.Color {
	return pixel.Color{R: pixel.Clamp(r), G: pixel.Clamp(g), B: pixel.Clamp(b)}
}

// HSV converts hue in degrees and saturation/value in percent to 0-255 RGB.
func HSV(hue, sat, val int) (r, g, b int) {
	h := float64(hue) / 360
	s := float64(sat) / 100
	v := float64(val) / 100

	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var rf, gf, bf float64
	switch i % 6 {
	case 0:
		rf, gf, bf = v, t, p
	case 1:
		rf, gf, bf = q, v, p
	case 2:
		rf, gf, bf = p, v, t
	case 3:
		rf, gf, bf = p, q, v
	case 4:
		rf, gf, bf = t, p, v
	default:
		rf, gf, bf = v, p, q
	}
	return int(rf * 255), int(gf * 255), int(bf * 255)
}

// Wheel maps 0-255 onto a red→green→blue→red colour wheel.
func Wheel(pos int) (r, g, b int) {
	switch {
	case pos < 85:
		return pos * 3, 255 - pos*3, 0
	case pos < 170:
		pos -= 85
		return 255 - pos*3, 0, pos * 3
	default:
		pos -= 170
		return 0, pos * 3, 255 - pos*3
	}
}
