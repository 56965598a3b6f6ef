package strip

import (
	"stripctl/internal/logger"
)

// Driver puts a frame on the physical strip. Brightness scaling is the
// driver's job; frames are always passed at full intensity.
type Driver interface {
	Show(frame []byte, brightness uint8) error
	Close() error
}

// NopDriver drops every frame.
type NopDriver struct{}

func (NopDriver) Show([]byte, uint8) error { return nil }
func (NopDriver) Close() error             { return nil }

// LogDriver writes frames to the debug log. Useful without hardware.
type LogDriver struct {
	log logger.Logger
}

// NewLogDriver конструктор.
func NewLogDriver(log logger.Logger) *LogDriver {
	return &LogDriver{log: log}
}

func (d *LogDriver) Show(frame []byte, brightness uint8) error {
	d.log.With(logger.Fields{"module": "driver"}).Debugf("show %d bytes at brightness %d: % x", len(frame), brightness, frame)
	return nil
}

func (d *LogDriver) Close() error {
	return nil
}
