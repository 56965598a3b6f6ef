package strip

import (
	"fmt"

	"stripctl/internal/effects"
	"stripctl/internal/logger"
	"stripctl/internal/pixel"
)

// Options are fixed for the lifetime of an engine, except LEDCount which
// Reconfigure may change.
type Options struct {
	LEDCount   int
	Layout     pixel.Layout
	Brightness uint8
	// OnRender is called after every frame handed to the driver.
	OnRender func()
}

// Engine owns the strip state, the effect registry and the pixel buffer.
// It is not safe for concurrent use: the scheduler goroutine is its only caller.
type Engine struct {
	log      logger.Logger
	driver   Driver
	layout   pixel.Layout
	ledCount int
	onRender func()

	state   State
	buf     pixel.Buffer
	renders int

	registry map[string]effects.Descriptor
	order    []string
}

// NewEngine конструктор. The registry starts with the built-in effects.
func NewEngine(log logger.Logger, opts Options, driver Driver) (*Engine, error) {
	if opts.LEDCount <= 0 {
		return nil, fmt.Errorf("%w: led count %d", ErrNotConfigured, opts.LEDCount)
	}
	if opts.Layout.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("%w: empty layout", ErrNotConfigured)
	}
	if driver == nil {
		driver = NopDriver{}
	}
	e := &Engine{
		log:      log,
		driver:   driver,
		layout:   opts.Layout,
		ledCount: opts.LEDCount,
		onRender: opts.OnRender,
		state: State{
			Brightness:   opts.Brightness,
			ActiveEffect: effects.None,
		},
		buf:      pixel.Zero(opts.LEDCount, opts.Layout),
		registry: map[string]effects.Descriptor{},
	}
	for _, d := range effects.Builtins() {
		if err := e.Register(d); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Apply runs one command. On error the state is left as it was, except
// for driver failures, which happen after the state change.
func (e *Engine) Apply(cmd Command) error {
	switch c := cmd.(type) {
	case SetPower:
		if !c.On {
			return e.powerOff()
		}
		e.state.Power = true
		if e.state.BaseColor == nil {
			def := pixel.DefaultColor(e.layout)
			e.state.BaseColor = &def
		}
		return e.render(e.stateBuffer())

	case ClearAll:
		return e.powerOff()

	case SetBrightness:
		e.state.Brightness = c.Level
		if e.state.Power {
			return e.render(e.stateBuffer())
		}
		// Off: only the scaling of what is shown changes.
		return e.render(e.buf)

	case SetColor:
		if e.state.BaseColor != nil && *e.state.BaseColor == c.Color {
			return nil
		}
		col := c.Color
		e.state.BaseColor = &col
		if e.state.Power && e.state.ActiveEffect == effects.None {
			return e.render(e.stateBuffer())
		}
		return nil

	case SetEffect:
		if _, ok := e.registry[c.ID]; !ok {
			return fmt.Errorf("%w: %q, available: %v", ErrUnknownEffect, c.ID, e.order)
		}
		prevID, prevParams := e.state.ActiveEffect, e.state.EffectParams
		e.state.ActiveEffect = c.ID
		e.state.EffectParams = c.Params
		if !e.state.Power {
			return nil
		}
		// откат и при ошибке, и при панике внутри эффекта
		done := false
		defer func() {
			if !done {
				e.state.ActiveEffect, e.state.EffectParams = prevID, prevParams
			}
		}()
		if err := e.render(e.stateBuffer()); err != nil {
			return err
		}
		done = true
		return nil

	case RawFrame:
		buf, err := pixel.DecodeFrame(c.Data, e.ledCount, e.layout)
		if err != nil {
			return err
		}
		return e.render(buf)
	}
	return fmt.Errorf("unsupported command %T", cmd)
}

func (e *Engine) powerOff() error {
	e.state.Power = false
	e.state.ActiveEffect = effects.None
	e.state.EffectParams = nil
	return e.render(pixel.Zero(e.ledCount, e.layout))
}

func (e *Engine) color() pixel.Color {
	if e.state.BaseColor != nil {
		return *e.state.BaseColor
	}
	return pixel.DefaultColor(e.layout)
}

func (e *Engine) stateBuffer() pixel.Buffer {
	if !e.state.Power {
		return pixel.Zero(e.ledCount, e.layout)
	}
	d := e.registry[e.state.ActiveEffect]
	return d.Render(effects.Input{
		LEDCount: e.ledCount,
		Layout:   e.layout,
		Color:    e.color(),
		Params:   e.state.EffectParams,
	})
}

// render validates buf against the strip geometry before it becomes the
// shown frame. A registered effect may return anything.
func (e *Engine) render(buf pixel.Buffer) error {
	bpp := e.layout.BytesPerPixel()
	if len(buf) != e.ledCount {
		got := 0
		for _, px := range buf {
			got += len(px)
		}
		return &pixel.ValidationError{Kind: pixel.ErrSizeMismatch, Got: got, Want: e.ledCount * bpp}
	}
	for _, px := range buf {
		if len(px) != bpp {
			return &pixel.ValidationError{Kind: pixel.ErrSizeMismatch, Got: len(px), Want: bpp}
		}
	}
	e.buf = buf
	e.renders++
	if e.onRender != nil {
		e.onRender()
	}
	if err := e.driver.Show(pixel.EncodeFrame(buf), e.state.Brightness); err != nil {
		return fmt.Errorf("driver show: %w", err)
	}
	return nil
}

// Register adds an effect to the registry.
func (e *Engine) Register(d effects.Descriptor) error {
	if d.ID == "" || d.Render == nil {
		return fmt.Errorf("invalid effect descriptor %q", d.ID)
	}
	if _, ok := e.registry[d.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEffect, d.ID)
	}
	e.registry[d.ID] = d
	e.order = append(e.order, d.ID)
	return nil
}

// Unregister removes an effect. Removing the active one falls back to
// the solid colour.
func (e *Engine) Unregister(id string) error {
	if id == effects.None {
		return fmt.Errorf("%w: %q", ErrProtectedEffect, id)
	}
	if _, ok := e.registry[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEffect, id)
	}
	delete(e.registry, id)
	for i, name := range e.order {
		if name == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if e.state.ActiveEffect != id {
		return nil
	}
	e.state.ActiveEffect = effects.None
	e.state.EffectParams = nil
	if e.state.Power {
		return e.render(e.stateBuffer())
	}
	return nil
}

// HasEffect reports whether id is registered.
func (e *Engine) HasEffect(id string) bool {
	_, ok := e.registry[id]
	return ok
}

// Effects lists the registered ids in registration order.
func (e *Engine) Effects() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	s := e.state
	if s.BaseColor != nil {
		c := *s.BaseColor
		s.BaseColor = &c
	}
	return s
}

// Buffer returns a copy of the last rendered buffer.
func (e *Engine) Buffer() pixel.Buffer {
	return e.buf.Clone()
}

func (e *Engine) LEDCount() int {
	return e.ledCount
}

func (e *Engine) Layout() pixel.Layout {
	return e.layout
}

// Renders counts frames handed to the driver.
func (e *Engine) Renders() int {
	return e.renders
}

// Preview shows a solid colour without touching the state.
func (e *Engine) Preview(c pixel.Color) error {
	return e.render(pixel.Fill(e.ledCount, e.layout.Encode(c)))
}

// Refresh shows the buffer derived from the current state again.
func (e *Engine) Refresh() error {
	return e.render(e.stateBuffer())
}

// Reconfigure changes the LED count. The buffer is reset to dark but not shown.
func (e *Engine) Reconfigure(ledCount int) error {
	if ledCount <= 0 {
		return fmt.Errorf("%w: led count %d", ErrNotConfigured, ledCount)
	}
	e.ledCount = ledCount
	e.buf = pixel.Zero(ledCount, e.layout)
	return nil
}

// Close darkens the strip and releases the driver.
func (e *Engine) Close() error {
	e.state.Power = false
	e.state.ActiveEffect = effects.None
	showErr := e.render(pixel.Zero(e.ledCount, e.layout))
	if err := e.driver.Close(); err != nil {
		return fmt.Errorf("driver close: %w", err)
	}
	return showErr
}
