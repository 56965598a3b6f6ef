package pixel

import (
	"errors"
	"testing"
)

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		bpp      int
		white    bool
		warnings int
	}{
		{"RGB", "RGB", 3, false, 0},
		{"grb", "GRB", 3, false, 0},
		{"RGBW", "RGBW", 4, true, 0},
		{"wrgb", "WRGB", 4, true, 0},
		{"GRBW", "GRBW", 4, true, 0},
		{"RGXB", "RGXB", 4, false, 1},
	}
	for _, tt := range tests {
		l, warnings, err := ParseLayout(tt.in)
		if err != nil {
			t.Fatalf("ParseLayout(%q) error: %v", tt.in, err)
		}
		if l.String() != tt.want {
			t.Errorf("ParseLayout(%q) = %q, want %q", tt.in, l.String(), tt.want)
		}
		if l.BytesPerPixel() != tt.bpp {
			t.Errorf("%q: BytesPerPixel() = %d, want %d", tt.in, l.BytesPerPixel(), tt.bpp)
		}
		if l.HasWhite() != tt.white {
			t.Errorf("%q: HasWhite() = %v, want %v", tt.in, l.HasWhite(), tt.white)
		}
		if len(warnings) != tt.warnings {
			t.Errorf("%q: got %d warnings, want %d", tt.in, len(warnings), tt.warnings)
		}
	}
}

func TestParseLayoutEmpty(t *testing.T) {
	if _, _, err := ParseLayout("  "); !errors.Is(err, ErrEmptyLayout) {
		t.Errorf("expected ErrEmptyLayout, got %v", err)
	}
}

func TestBytesPerPixelWhite(t *testing.T) {
	for _, s := range []string{"RGB", "GRB", "BGR", "RGBW", "WRGB", "GRBW"} {
		l := MustParseLayout(s)
		want := 3
		if l.HasWhite() {
			want = 4
		}
		if l.BytesPerPixel() != want {
			t.Errorf("%s: BytesPerPixel() = %d, want %d", s, l.BytesPerPixel(), want)
		}
	}
}

func TestEncodeDecodeOrder(t *testing.T) {
	c := Color{R: 1, G: 2, B: 3, W: 4}
	tests := []struct {
		layout string
		want   Pixel
	}{
		{"RGB", Pixel{1, 2, 3}},
		{"GRB", Pixel{2, 1, 3}},
		{"WRGB", Pixel{4, 1, 2, 3}},
		{"RGBW", Pixel{1, 2, 3, 4}},
		{"RXB", Pixel{1, 0, 3}},
	}
	for _, tt := range tests {
		l := MustParseLayout(tt.layout)
		got := l.Encode(c)
		if string(got) != string(tt.want) {
			t.Errorf("%s: Encode = %v, want %v", tt.layout, got, tt.want)
		}
	}

	l := MustParseLayout("GRBW")
	if back := l.Decode(l.Encode(c)); back != c {
		t.Errorf("Decode(Encode(c)) = %v, want %v", back, c)
	}
}

func TestDefaultColor(t *testing.T) {
	l := MustParseLayout("WRGB")
	got := l.Encode(DefaultColor(l))
	want := Pixel{0, 255, 255, 255}
	if string(got) != string(want) {
		t.Errorf("default colour = %v, want %v", got, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, s := range []string{"RGB", "RGBW", "WRGB"} {
		l := MustParseLayout(s)
		buf := make(Buffer, 5)
		for i := range buf {
			buf[i] = l.Encode(Color{R: uint8(i * 10), G: uint8(i*10 + 1), B: 200, W: 7})
		}
		got, err := DecodeFrame(EncodeFrame(buf), len(buf), l)
		if err != nil {
			t.Fatalf("%s: DecodeFrame error: %v", s, err)
		}
		if !got.Equal(buf) {
			t.Errorf("%s: round trip = %v, want %v", s, got, buf)
		}
	}
}

func TestDecodeFrameSizeMismatch(t *testing.T) {
	l := MustParseLayout("RGBW")
	for _, n := range []int{0, 15, 17, 32} {
		_, err := DecodeFrame(make([]byte, n), 4, l)
		if !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("len %d: expected ErrSizeMismatch, got %v", n, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Want != 16 || verr.Got != n {
			t.Errorf("len %d: unexpected error detail %#v", n, err)
		}
	}
}

func TestWiden(t *testing.T) {
	rgbw := MustParseLayout("RGBW")
	rgb := MustParseLayout("RGB")

	c, err := Widen([]int{255, 0, 0}, rgbw)
	if err != nil || c != (Color{R: 255}) {
		t.Errorf("Widen rgb->rgbw = %v, %v", c, err)
	}
	c, err = Widen([]int{1, 2, 3, 4}, rgbw)
	if err != nil || c != (Color{1, 2, 3, 4}) {
		t.Errorf("Widen rgbw = %v, %v", c, err)
	}
	c, err = Widen([]int{1, 2, 3, 4}, rgb)
	if err != nil || c != (Color{R: 1, G: 2, B: 3}) {
		t.Errorf("Widen rgbw->rgb = %v, %v", c, err)
	}
	if _, err = Widen([]int{1, 256, 3}, rgb); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-5) != 0 || Clamp(300) != 255 || Clamp(17) != 17 {
		t.Error("Clamp does not limit to 0-255")
	}
}
