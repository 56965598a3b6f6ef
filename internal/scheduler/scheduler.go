// Package scheduler runs the controller loop: it polls the transports,
// applies commands to the strip and keeps Home Assistant informed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stripctl/internal/clientmqtt"
	"stripctl/internal/dispatch"
	"stripctl/internal/effects"
	"stripctl/internal/logger"
	"stripctl/internal/metrics"
	"stripctl/internal/network"
	"stripctl/internal/pixel"
	"stripctl/internal/strip"
)

// FrameSource is the UDP session.
type FrameSource interface {
	Poll() ([]byte, bool)
	Close() error
}

// Session is the MQTT session.
type Session interface {
	Poll(now time.Time) []clientmqtt.Message
	Route(msg clientmqtt.Message) (dispatch.Result, bool)
	MarkDirty(now time.Time)
	Flush(now time.Time)
	PublishStatus(now time.Time) error
	RepublishDiscovery() error
	Close() error
}

// Transports are the sessions of one association. Either may be nil.
type Transports struct {
	UDP  FrameSource
	MQTT Session
}

// TransportFactory builds fresh sessions after the link is associated.
type TransportFactory func(ctx context.Context) (Transports, error)

// Options tune the loop. Zero durations take the defaults below.
type Options struct {
	Quantum        time.Duration // пауза в конце итерации
	StatusInterval time.Duration // период heartbeat, 0 - отключён
	CheckInterval  time.Duration // период проверки сети
	LinkRetry      time.Duration // первая пауза между попытками подключения к сети
	StartupTest    bool
	TestStep       time.Duration // длительность одного цвета теста
	TesterStep     time.Duration // длительность одного цвета в режиме тестера
}

const maxLinkRetry = time.Minute

// Scheduler owns the strip engine. All its methods run on one goroutine.
type Scheduler struct {
	ctx        context.Context
	log        logger.Logger
	opts       Options
	engine     *strip.Engine
	dispatcher *dispatch.Dispatcher
	link       network.Link
	factory    TransportFactory
	metrics    *metrics.Metrics

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool

	udp        FrameSource
	mqtt       Session
	nextStatus time.Time
}

// New конструктор. link may be nil when the host is always connected.
func New(log logger.Logger, opts Options, engine *strip.Engine, d *dispatch.Dispatcher,
	link network.Link, factory TransportFactory, m *metrics.Metrics) *Scheduler {
	if opts.Quantum <= 0 {
		opts.Quantum = 10 * time.Millisecond
	}
	if opts.LinkRetry <= 0 {
		opts.LinkRetry = time.Second
	}
	if opts.TestStep <= 0 {
		opts.TestStep = 500 * time.Millisecond
	}
	if opts.TesterStep <= 0 {
		opts.TesterStep = time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	return &Scheduler{
		ctx:        context.Background(),
		log:        log,
		opts:       opts,
		engine:     engine,
		dispatcher: d,
		link:       link,
		factory:    factory,
		metrics:    m,
		Now:        time.Now,
		Sleep:      sleep,
	}
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Attach installs sessions without the association loop.
func (s *Scheduler) Attach(t Transports) {
	s.udp = t.UDP
	s.mqtt = t.MQTT
	s.nextStatus = time.Time{}
}

// Step is one loop iteration. UDP goes first and yields at most one frame
// so a flood of frames cannot starve MQTT.
func (s *Scheduler) Step(now time.Time) {
	if s.udp != nil {
		if data, ok := s.udp.Poll(); ok {
			res, err := s.dispatcher.FromFrame(dispatch.SourceUDP, data)
			if err != nil {
				s.metrics.Dropped.WithLabelValues("size_mismatch").Inc()
				s.log.With(logger.Fields{"module": "scheduler"}).Debugf("udp frame dropped: %v", err)
			} else {
				s.apply(res, now)
			}
		}
	}

	if s.mqtt == nil {
		return
	}
	for _, msg := range s.mqtt.Poll(now) {
		if res, ok := s.mqtt.Route(msg); ok {
			s.apply(res, now)
		}
	}
	s.mqtt.Flush(now)

	if s.opts.StatusInterval > 0 && !now.Before(s.nextStatus) {
		if !s.nextStatus.IsZero() {
			if err := s.mqtt.PublishStatus(now); err != nil && !errors.Is(err, clientmqtt.ErrNotConnected) {
				s.log.With(logger.Fields{"module": "scheduler"}).Warnf("status publish: %v", err)
			}
		}
		s.nextStatus = now.Add(s.opts.StatusInterval)
	}
}

func (s *Scheduler) apply(res dispatch.Result, now time.Time) {
	s.metrics.Commands.WithLabelValues(string(res.Source)).Inc()
	if res.StartupTest {
		s.StartupTest()
		return
	}
	for _, cmd := range res.Commands {
		if err := s.applyOne(cmd); err != nil {
			s.log.With(logger.Fields{"module": "scheduler"}).Warnf("%s from %s failed: %v", cmd, res.Source, err)
		}
	}
	if res.Publish && s.mqtt != nil {
		s.mqtt.MarkDirty(now)
	}
}

// applyOne runs a command and turns a panic inside it (a registered
// effect, a driver) into an error so the loop keeps going.
func (s *Scheduler) applyOne(cmd strip.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.engine.Apply(cmd)
}

// StartupTest shows red, green and blue, then returns to the state.
func (s *Scheduler) StartupTest() {
	s.log.With(logger.Fields{"module": "scheduler"}).Info("running startup test")
	for _, c := range []pixel.Color{{R: 255}, {G: 255}, {B: 255}} {
		if err := s.engine.Preview(c); err != nil {
			s.log.With(logger.Fields{"module": "scheduler"}).Warnf("startup test: %v", err)
		}
		if !s.Sleep(s.ctx, s.opts.TestStep) {
			break
		}
	}
	if err := s.engine.Preview(pixel.Color{}); err != nil {
		s.log.With(logger.Fields{"module": "scheduler"}).Warnf("startup test: %v", err)
	}
	if err := s.engine.Refresh(); err != nil {
		s.log.With(logger.Fields{"module": "scheduler"}).Warnf("startup test: %v", err)
	}
}

// RegisterEffect adds an effect and announces the new effect list.
func (s *Scheduler) RegisterEffect(d effects.Descriptor) error {
	if err := s.engine.Register(d); err != nil {
		return err
	}
	s.effectsChanged()
	return nil
}

// UnregisterEffect removes an effect and announces the new effect list.
func (s *Scheduler) UnregisterEffect(id string) error {
	if err := s.engine.Unregister(id); err != nil {
		return err
	}
	s.effectsChanged()
	return nil
}

func (s *Scheduler) effectsChanged() {
	if s.mqtt == nil {
		return
	}
	if err := s.mqtt.RepublishDiscovery(); err != nil && !errors.Is(err, clientmqtt.ErrNotConnected) {
		s.log.With(logger.Fields{"module": "scheduler"}).Warnf("discovery publish: %v", err)
	}
	s.mqtt.MarkDirty(s.Now())
}

// Run associates the link, builds the transports and loops until ctx is
// cancelled. A lost link tears the sessions down and starts over.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	if s.opts.StartupTest {
		s.StartupTest()
	}

	for ctx.Err() == nil {
		if !s.associate(ctx) {
			break
		}
		t, err := s.factory(ctx)
		if err != nil {
			s.log.With(logger.Fields{"module": "scheduler"}).Errorf("transports: %v", err)
			if !s.Sleep(ctx, s.opts.LinkRetry) {
				break
			}
			continue
		}
		s.Attach(t)
		if !s.loop(ctx) {
			break
		}
		s.closeTransports()
	}

	// Сначала гасим ленту, потом offline и закрытие сокетов.
	if err := s.closeStrip(); err != nil {
		s.log.With(logger.Fields{"module": "scheduler"}).Warnf("strip close: %v", err)
	}
	s.closeTransports()
	s.log.With(logger.Fields{"module": "scheduler"}).Info("scheduler stopped")
	return nil
}

// associate blocks until the link is up, doubling the pause after each
// failure. It returns false when ctx ended.
func (s *Scheduler) associate(ctx context.Context) bool {
	if s.link == nil {
		return true
	}
	wait := s.opts.LinkRetry
	for {
		err := s.link.Associate(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.log.With(logger.Fields{"module": "scheduler"}).Warnf("network not associated: %v, retry in %v", err, wait)
		if !s.Sleep(ctx, wait) {
			return false
		}
		wait *= 2
		if wait > maxLinkRetry {
			wait = maxLinkRetry
		}
	}
}

// loop returns true when the link was lost and false on cancellation.
func (s *Scheduler) loop(ctx context.Context) bool {
	nextCheck := s.Now().Add(s.opts.CheckInterval)
	for {
		if ctx.Err() != nil {
			return false
		}
		now := s.Now()
		s.Step(now)
		if s.link != nil && s.opts.CheckInterval > 0 && !now.Before(nextCheck) {
			nextCheck = now.Add(s.opts.CheckInterval)
			if !s.link.Connected() {
				s.log.With(logger.Fields{"module": "scheduler"}).Warn("network lost, restarting sessions")
				return true
			}
		}
		if !s.Sleep(ctx, s.opts.Quantum) {
			return false
		}
	}
}

func (s *Scheduler) closeTransports() {
	if s.mqtt != nil {
		if err := s.mqtt.Close(); err != nil {
			s.log.With(logger.Fields{"module": "scheduler"}).Warnf("mqtt close: %v", err)
		}
		s.mqtt = nil
	}
	if s.udp != nil {
		if err := s.udp.Close(); err != nil {
			s.log.With(logger.Fields{"module": "scheduler"}).Warnf("udp close: %v", err)
		}
		s.udp = nil
	}
}

func (s *Scheduler) closeStrip() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.engine.Close()
}
