package strip

import (
	"testing"

	"stripctl/internal/logger"
	"stripctl/internal/pixel"
)

func TestBuiltinDrivers(t *testing.T) {
	for _, d := range []Driver{NopDriver{}, NewLogDriver(logger.NewNop())} {
		e, err := NewEngine(logger.NewNop(), Options{
			LEDCount:   3,
			Layout:     pixel.MustParseLayout("GRB"),
			Brightness: 10,
		}, d)
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Apply(SetPower{On: true}); err != nil {
			t.Errorf("%T: %v", d, err)
		}
		if err := e.Close(); err != nil {
			t.Errorf("%T close: %v", d, err)
		}
	}
}
