// Package artnet sends strip frames to Art-Net nodes (DMX over UDP/IP).
package artnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Haba1234/go-artnet"
	"stripctl/internal/logger"
	"stripctl/internal/pixel"
)

// sender is the part of the go-artnet controller the driver uses.
type sender interface {
	Start() error
	Stop()
	SendDMXToAddress(dmx [512]byte, address artnet.Address)
}

// Driver implements strip.Driver on top of an Art-Net controller. Frames
// are queued by Show and sent from a background goroutine.
type Driver struct {
	logger      logger.Logger
	cfg         Conf
	bpp         int
	sender      sender
	nodes       func() []*artnet.ControlledNode
	sendTrigger chan []UniverseFrame
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewDriver конструктор.
func NewDriver(log logger.Logger, cfg Conf, layout pixel.Layout) (*Driver, error) {
	ip, err := FindArtNetIP(cfg.CIDR)
	if err != nil {
		return nil, fmt.Errorf("failed to find the art-net IP: %w", err)
	}

	if len(ip) == 0 {
		return nil, errors.New("failed to find the art-net IP: No interface found")
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}

	host = strings.ToLower(strings.Split(host, ".")[0])
	log.With(logger.Fields{"module": "art-net"}).Infof("Using ArtNet IP %s and hostname %s", ip.String(), host)

	fps := cfg.MaxFPS
	if fps <= 0 {
		fps = 40
	}
	senderLogger := artnet.NewDefaultLogger("info")
	controller := artnet.NewController(host, ip, senderLogger, artnet.MaxFPS(fps))

	d := newDriver(log, cfg, layout, controller)
	d.nodes = func() []*artnet.ControlledNode { return controller.Nodes }
	return d, nil
}

func newDriver(log logger.Logger, cfg Conf, layout pixel.Layout, s sender) *Driver {
	return &Driver{
		logger:      log,
		cfg:         cfg,
		bpp:         layout.BytesPerPixel(),
		sender:      s,
		sendTrigger: make(chan []UniverseFrame, 4),
	}
}

// Start the controller and the background sender.
func (c *Driver) Start(ctx context.Context) error {
	if err := c.sender.Start(); err != nil {
		return fmt.Errorf("failed to start Controller: %w", err)
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.sendBackground(ctx)
	if c.nodes != nil {
		go c.debugDevices(ctx)
	}
	return nil
}

// Show scales the frame and queues it. When the sender is behind, the
// frame is dropped.
func (c *Driver) Show(frame []byte, brightness uint8) error {
	if c.done == nil {
		return errors.New("art-net driver is not started")
	}
	universes := Split(frame, c.bpp, brightness, c.cfg.Universe)
	select {
	case c.sendTrigger <- universes:
	default:
		c.logger.With(logger.Fields{"module": "art-net"}).Debug("DMX. Очередь занята, кадр пропущен")
	}
	return nil
}

// Close stops the background sender and the controller.
func (c *Driver) Close() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	<-c.done
	c.sender.Stop()
	c.cancel = nil
	return nil
}

func (c *Driver) sendBackground(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.sendTrigger:
			for _, u := range data {
				c.logger.With(logger.Fields{"module": "art-net"}).Debugf("DMX. Отправка в контроллер по адресу %v", u.Universe)
				c.sender.SendDMXToAddress(u.Data, universeToAddress(u.Universe))
			}
		}
	}
}

// Split scales frame by brightness and cuts it into universes. A pixel is
// never split across two universes, so an RGB universe carries 170 pixels
// and an RGBW one 128.
func Split(frame []byte, bpp int, brightness uint8, first uint16) []UniverseFrame {
	if bpp <= 0 {
		return nil
	}
	perUniverse := (len(Universe{}) / bpp) * bpp
	var out []UniverseFrame
	for off, u := 0, first; off < len(frame); off, u = off+perUniverse, u+1 {
		end := off + perUniverse
		if end > len(frame) {
			end = len(frame)
		}
		uf := UniverseFrame{Universe: u}
		for i, v := range frame[off:end] {
			uf.Data[i] = uint8(int(v) * int(brightness) / 255)
		}
		out = append(out, uf)
	}
	return out
}

// universeToAddress converts a dmx universe to art-net address
// universe: старший байт - Net, младший байт - SubUni.
func universeToAddress(universe uint16) artnet.Address {
	v := make([]uint8, 2)
	binary.BigEndian.PutUint16(v, universe)

	return artnet.Address{
		Net:    v[0],
		SubUni: v[1],
	}
}

// NodeToString returns a string representation of the given Node.
func NodeToString(n *artnet.ControlledNode) (string, NodeTopic) {
	var inputs, outputs []string
	var out []uint16
	var outStr []string
	for _, p := range n.Node.InputPorts {
		inputs = append(inputs, fmt.Sprintf("%s: %s", p.Address.String(), p.Type.String()))
	}

	for _, p := range n.Node.OutputPorts {
		outputs = append(outputs, fmt.Sprintf("%s: %s", p.Address.String(), p.Type.String()))
		out = append(out, uint16(p.Address.Integer()))
		outStr = append(outStr, p.Address.String())
	}

	return fmt.Sprintf(
			" | IP=%s name=%q type=%q manufacturer=%q desc=%q inputs=%q outputs=%q",
			n.UDPAddress.String(), n.Node.Name, n.Node.Type,
			n.Node.Manufacturer, n.Node.Description,
			strings.Join(inputs, "; "), strings.Join(outputs, "; "),
		), NodeTopic{
			Name:      n.Node.Name,
			OutputStr: outStr,
			Output:    out,
		}
}

func ips(nodes []*artnet.ControlledNode) (ips IpsType) {
	ips = IpsType{}
	for _, n := range nodes {
		node, out := NodeToString(n)
		ips.Ips = append(ips.Ips, node)
		ips.Topics = append(ips.Topics, out)
	}
	return ips
}

func (c *Driver) debugDevices(ctx context.Context) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		nodes := c.nodes()
		dev := ips(nodes)
		c.logger.With(logger.Fields{"module": "art-net"}).Debugf("Currently %d devices are registered: %v", len(nodes), dev.Ips)
		for _, top := range dev.Topics {
			// Узлы, которые не слушают наши универсы, лента не увидит.
			if !listens(top, c.cfg.Universe) {
				c.logger.With(logger.Fields{"module": "art-net"}).Debugf("node %s has no output on universe %d", top.Name, c.cfg.Universe)
			}
		}
	}
}

func listens(top NodeTopic, universe uint16) bool {
	for _, out := range top.Output {
		if out == universe {
			return true
		}
	}
	return false
}
