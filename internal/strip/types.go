package strip

import (
	"errors"
	"fmt"

	"stripctl/internal/effects"
	"stripctl/internal/pixel"
)

var (
	ErrUnknownEffect   = errors.New("unknown effect")
	ErrDuplicateEffect = errors.New("effect already registered")
	ErrProtectedEffect = errors.New("effect cannot be removed")
	ErrNotConfigured   = errors.New("strip is not configured")
)

// State is the structured strip state. Raw frames never touch it.
type State struct {
	Power        bool
	Brightness   uint8
	BaseColor    *pixel.Color // nil until a colour is set or the strip is turned on
	ActiveEffect string
	EffectParams effects.Params
}

// Mode names the state machine position: off, solid or an effect.
func (s State) Mode() string {
	switch {
	case !s.Power:
		return "off"
	case s.ActiveEffect == effects.None:
		return "solid"
	default:
		return "effect:" + s.ActiveEffect
	}
}

// Command is one normalized instruction for the engine.
type Command interface {
	fmt.Stringer
	command()
}

type SetPower struct{ On bool }

type SetBrightness struct{ Level uint8 }

type SetColor struct{ Color pixel.Color }

type SetEffect struct {
	ID     string
	Params effects.Params
}

// RawFrame is shown as is, bypassing the structured state.
type RawFrame struct{ Data []byte }

type ClearAll struct{}

func (SetPower) command()      {}
func (SetBrightness) command() {}
func (SetColor) command()      {}
func (SetEffect) command()     {}
func (RawFrame) command()      {}
func (ClearAll) command()      {}

func (c SetPower) String() string      { return fmt.Sprintf("SetPower(%v)", c.On) }
func (c SetBrightness) String() string { return fmt.Sprintf("SetBrightness(%d)", c.Level) }
func (c SetColor) String() string      { return fmt.Sprintf("SetColor(%v)", c.Color) }
func (c SetEffect) String() string     { return fmt.Sprintf("SetEffect(%s)", c.ID) }
func (c RawFrame) String() string      { return fmt.Sprintf("RawFrame(%d bytes)", len(c.Data)) }
func (ClearAll) String() string        { return "ClearAll" }
