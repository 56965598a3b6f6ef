package scheduler

import (
	"context"

	"stripctl/internal/logger"
	"stripctl/internal/pixel"
)

// Tester grows the strip one LED at a time and shows every channel on it,
// to find the real length of a strip. After limit LEDs it starts over.
func (s *Scheduler) Tester(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 1
	}
	colors := []pixel.Color{{R: 255}, {G: 255}, {B: 255}}
	if s.engine.Layout().HasWhite() {
		colors = append(colors, pixel.Color{W: 255})
	}

	for n := 1; ; n++ {
		if n > limit {
			n = 1
		}
		if err := s.engine.Reconfigure(n); err != nil {
			return err
		}
		s.log.With(logger.Fields{"module": "tester"}).Infof("testing %d LEDs", n)
		for _, c := range colors {
			if err := s.engine.Preview(c); err != nil {
				s.log.With(logger.Fields{"module": "tester"}).Warnf("show: %v", err)
			}
			if !s.Sleep(ctx, s.opts.TesterStep) {
				return s.engine.Close()
			}
		}
		if err := s.engine.Preview(pixel.Color{}); err != nil {
			s.log.With(logger.Fields{"module": "tester"}).Warnf("show: %v", err)
		}
		if ctx.Err() != nil {
			return s.engine.Close()
		}
	}
}
