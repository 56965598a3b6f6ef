// Package dispatch turns raw frames, legacy JSON commands and Home
// Assistant JSON light commands into strip commands.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stripctl/internal/effects"
	"stripctl/internal/logger"
	"stripctl/internal/pixel"
	"stripctl/internal/strip"
)

var (
	ErrMalformed     = errors.New("malformed command")
	ErrUnknownAction = errors.New("unknown action")
)

// Source tells where a result came from.
type Source string

const (
	SourceUDP           Source = "udp"
	SourceMQTTData      Source = "mqtt_data"
	SourceLegacy        Source = "legacy"
	SourceHomeAssistant Source = "homeassistant"
)

// Result is the normalized form of one inbound message.
type Result struct {
	Source   Source
	Commands []strip.Command
	// StartupTest asks for the R/G/B self test. It bypasses the state.
	StartupTest bool
	// Publish marks results that change structured state and must be
	// reported back on the state topic.
	Publish bool
}

// StateReader is the read side of the strip engine.
type StateReader interface {
	State() strip.State
	HasEffect(id string) bool
	LEDCount() int
	Layout() pixel.Layout
}

// Dispatcher is stateless apart from reading the engine.
type Dispatcher struct {
	log   logger.Logger
	strip StateReader
}

// New конструктор.
func New(log logger.Logger, reader StateReader) *Dispatcher {
	return &Dispatcher{log: log, strip: reader}
}

// FromFrame wraps a raw frame. Frames of the wrong length are rejected here
// so that nothing reaches the engine.
func (d *Dispatcher) FromFrame(src Source, data []byte) (Result, error) {
	layout := d.strip.Layout()
	want := d.strip.LEDCount() * layout.BytesPerPixel()
	if len(data) != want {
		return Result{Source: src}, &pixel.ValidationError{Kind: pixel.ErrSizeMismatch, Got: len(data), Want: want}
	}
	return Result{Source: src, Commands: []strip.Command{strip.RawFrame{Data: data}}}, nil
}

type legacyCommand struct {
	Action string `json:"action"`
	Color  []int  `json:"color"`
	Value  *int   `json:"value"`
}

// FromLegacy handles {"action": "fill"|"clear"|"brightness"|"test", ...}.
func (d *Dispatcher) FromLegacy(payload []byte) (Result, error) {
	res := Result{Source: SourceLegacy}
	d.log.With(logger.Fields{"module": "dispatch"}).Debugf("legacy command: %s", payload)
	var cmd legacyCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return res, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch cmd.Action {
	case "fill":
		values := cmd.Color
		if values == nil {
			values = []int{0, 0, 0}
		}
		if len(values) < 3 || len(values) > 4 {
			return res, fmt.Errorf("%w: fill colour needs 3 or 4 values, got %d", ErrMalformed, len(values))
		}
		c, err := pixel.Widen(values, d.strip.Layout())
		if err != nil {
			return res, err
		}
		res.Commands = []strip.Command{
			strip.SetColor{Color: c},
			strip.SetEffect{ID: effects.None},
			strip.SetPower{On: true},
		}
	case "clear":
		res.Commands = []strip.Command{strip.ClearAll{}}
	case "brightness":
		level := 255
		if cmd.Value != nil {
			level = *cmd.Value
		}
		b, err := toByte(level)
		if err != nil {
			return res, err
		}
		res.Commands = []strip.Command{strip.SetBrightness{Level: b}}
	case "test":
		res.StartupTest = true
		return res, nil
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	res.Publish = true
	return res, nil
}

type haColor struct {
	R *int `json:"r"`
	G *int `json:"g"`
	B *int `json:"b"`
	W *int `json:"w"`
}

type haCommand struct {
	State      *string  `json:"state"`
	Brightness *int     `json:"brightness"`
	Color      *haColor `json:"color"`
	Effect     *string  `json:"effect"`
}

// FromHomeAssistant handles the JSON light schema. Every field is optional;
// commands are emitted as power, brightness, colour, effect so later ones
// win. A message that fails validation produces no commands at all.
func (d *Dispatcher) FromHomeAssistant(payload []byte) (Result, error) {
	res := Result{Source: SourceHomeAssistant}
	d.log.With(logger.Fields{"module": "dispatch"}).Debugf("HA command: %s", payload)
	var cmd haCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return res, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		brightness *uint8
		color      *pixel.Color
	)
	if cmd.Brightness != nil {
		b, err := toByte(*cmd.Brightness)
		if err != nil {
			return res, err
		}
		brightness = &b
	}
	if cmd.Effect != nil && !d.strip.HasEffect(*cmd.Effect) {
		return res, fmt.Errorf("%w: %q", strip.ErrUnknownEffect, *cmd.Effect)
	}
	// An effect other than "none" hides the solid colour, so a colour sent
	// along with it is dropped.
	effectHidesColor := cmd.Effect != nil && *cmd.Effect != effects.None
	if cmd.Color != nil && !effectHidesColor {
		c, err := pixel.Widen(cmd.Color.values(), d.strip.Layout())
		if err != nil {
			return res, err
		}
		color = &c
	}

	if cmd.State != nil {
		switch strings.ToUpper(*cmd.State) {
		case "OFF":
			res.Commands = []strip.Command{strip.SetPower{On: false}}
			res.Publish = true
			return res, nil
		case "ON":
			res.Commands = append(res.Commands, strip.SetPower{On: true})
			if brightness != nil {
				res.Commands = append(res.Commands, strip.SetBrightness{Level: *brightness})
			}
			if color != nil {
				res.Commands = append(res.Commands, strip.SetColor{Color: *color})
			}
		default:
			return res, fmt.Errorf("%w: unknown state %q", ErrMalformed, *cmd.State)
		}
	} else {
		if brightness != nil {
			res.Commands = append(res.Commands, strip.SetBrightness{Level: *brightness})
		}
		if color != nil {
			cur := d.strip.State()
			if cur.BaseColor == nil || *cur.BaseColor != *color {
				res.Commands = append(res.Commands, strip.SetColor{Color: *color})
				if !cur.Power {
					res.Commands = append(res.Commands, strip.SetPower{On: true})
				}
			}
		}
	}
	if cmd.Effect != nil {
		res.Commands = append(res.Commands, strip.SetEffect{ID: *cmd.Effect})
	}
	res.Publish = true
	return res, nil
}

func (c *haColor) values() []int {
	get := func(v *int) int {
		if v == nil {
			return 0
		}
		return *v
	}
	return []int{get(c.R), get(c.G), get(c.B), get(c.W)}
}

func toByte(v int) (uint8, error) {
	if v < 0 || v > 255 {
		return 0, &pixel.ValidationError{Kind: pixel.ErrOutOfRange, Got: v}
	}
	return uint8(v), nil
}
