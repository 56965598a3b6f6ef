package clientmqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"stripctl/internal/dispatch"
	"stripctl/internal/logger"
	"stripctl/internal/metrics"
	"stripctl/internal/network"
	"stripctl/internal/pixel"
)

var ErrNotConnected = errors.New("mqtt session is not connected")

// inboxSize bounds the messages buffered between two polls.
const inboxSize = 64

// Strip is what the session needs to know about the engine.
type Strip interface {
	dispatch.StateReader
	Effects() []string
}

// Deps are the collaborators handed to the session at construction.
type Deps struct {
	Link    network.Link
	Metrics *metrics.Metrics
	// NewClient defaults to mqtt.NewClient.
	NewClient func(o *mqtt.ClientOptions) mqtt.Client
	// Now defaults to time.Now.
	Now func() time.Time
}

// Message is one inbound MQTT message waiting to be routed.
type Message struct {
	Topic   string
	Payload []byte
}

// ClientMQTT is the MQTT transport session. Everything except the paho
// handlers runs on the scheduler goroutine.
type ClientMQTT struct {
	ctx        context.Context
	log        logger.Logger
	cfgClient  MQTTConf
	topics     Topics
	strip      Strip
	dispatcher *dispatch.Dispatcher
	link       network.Link
	metrics    *metrics.Metrics
	newClient  func(o *mqtt.ClientOptions) mqtt.Client
	now        func() time.Time

	client      mqtt.Client
	state       State
	lost        atomic.Bool
	attempted   bool
	lastAttempt time.Time
	started     time.Time
	inbox       chan Message

	dirty      bool
	dirtySince time.Time
	firstDirty time.Time
}

// NewClient конструктор.
func NewClient(log logger.Logger, cfgClient MQTTConf, s Strip, d *dispatch.Dispatcher, deps Deps) *ClientMQTT {
	if cfgClient.Schema == "" {
		cfgClient.Schema = "tcp"
	}
	if cfgClient.ConnectTimeout <= 0 {
		cfgClient.ConnectTimeout = 5 * time.Second
	}
	c := &ClientMQTT{
		ctx:        context.Background(),
		log:        log,
		cfgClient:  cfgClient,
		topics:     NewTopics(cfgClient),
		strip:      s,
		dispatcher: d,
		link:       deps.Link,
		metrics:    deps.Metrics,
		newClient:  deps.NewClient,
		now:        deps.Now,
		state:      StateDisconnected,
		inbox:      make(chan Message, inboxSize),
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.newClient == nil {
		c.newClient = mqtt.NewClient
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Start records the context used by token watchers. The first connection
// attempt happens on the first Poll.
func (c *ClientMQTT) Start(ctx context.Context) {
	if c.log.GetLevel() == "trace" {
		mqtt.ERROR = log.New(os.Stdout, "[ERROR] ", 0)
		mqtt.CRITICAL = log.New(os.Stdout, "[CRIT] ", 0)
		mqtt.WARN = log.New(os.Stdout, "[WARN]  ", 0)
	}
	c.ctx = ctx
	c.started = c.now()
}

func (c *ClientMQTT) State() State {
	return c.state
}

func (c *ClientMQTT) Topics() Topics {
	return c.topics
}

// Poll drives the connection state machine and returns every message
// queued since the previous call. The messages are not dispatched yet:
// the caller routes each one with Route right before applying it, so
// every message is read against the state left by the one before.
func (c *ClientMQTT) Poll(now time.Time) []Message {
	if c.lost.Swap(false) && c.state == StateConnected {
		if c.client.IsConnected() {
			c.client.Disconnect(0)
		}
		c.setState(StateDisconnected)
	}
	if c.state != StateConnected {
		if !c.attempted || now.Sub(c.lastAttempt) >= c.cfgClient.RetryInterval {
			c.attempted = true
			c.lastAttempt = now
			if err := c.connect(now); err != nil {
				c.log.With(logger.Fields{"module": "mqtt"}).Errorf("connection failed: %v", err)
			}
		}
		return nil
	}

	var batch []Message
	for i := 0; i < inboxSize; i++ {
		select {
		case msg := <-c.inbox:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}

// Route turns one message into strip commands by its topic. Rejected
// messages are logged and counted, and ok is false.
func (c *ClientMQTT) Route(msg Message) (res dispatch.Result, ok bool) {
	var err error
	switch msg.Topic {
	case c.topics.Data:
		res, err = c.dispatcher.FromFrame(dispatch.SourceMQTTData, msg.Payload)
	case c.topics.Command:
		res, err = c.dispatcher.FromLegacy(msg.Payload)
	case c.topics.HACommand:
		res, err = c.dispatcher.FromHomeAssistant(msg.Payload)
	default:
		c.log.With(logger.Fields{"module": "mqtt"}).Warnf("message on unexpected topic %s", msg.Topic)
		return res, false
	}
	if err != nil {
		if errors.Is(err, pixel.ErrSizeMismatch) {
			c.metrics.Dropped.WithLabelValues("size_mismatch").Inc()
			c.log.With(logger.Fields{"module": "mqtt"}).Debugf("frame dropped: %v", err)
		} else {
			c.metrics.Dropped.WithLabelValues("invalid_command").Inc()
			c.log.With(logger.Fields{"module": "mqtt"}).Warnf("command on %s rejected: %v", msg.Topic, err)
		}
		return res, false
	}
	return res, true
}

func (c *ClientMQTT) setState(s State) {
	if c.state == s {
		return
	}
	c.log.With(logger.Fields{"module": "mqtt"}).Infof("state %s -> %s", c.state, s)
	c.state = s
	if s == StateConnected {
		c.metrics.MQTTConnected.Set(1)
	} else {
		c.metrics.MQTTConnected.Set(0)
	}
}

func (c *ClientMQTT) connect(now time.Time) error {
	c.setState(StateConnecting)

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", c.cfgClient.Schema, c.cfgClient.Host, c.cfgClient.Port)).
		SetUsername(c.cfgClient.User).
		SetPassword(c.cfgClient.Password).
		SetDefaultPublishHandler(c.messageHandler).
		SetOnConnectHandler(c.connectHandler).
		SetConnectionLostHandler(c.connectLostHandler).
		SetClientID(c.cfgClient.ClientID).
		SetOrderMatters(true).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.cfgClient.ConnectTimeout).
		SetKeepAlive(c.cfgClient.KeepAlive).
		SetWill(c.topics.Availability, payloadNotAvailable, c.cfgClient.Qos, true)

	c.client = c.newClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(c.cfgClient.ConnectTimeout) {
		c.setState(StateDisconnected)
		return fmt.Errorf("no answer from %s:%s within %v", c.cfgClient.Host, c.cfgClient.Port, c.cfgClient.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.lost.Store(false)
	c.setState(StateConnected)
	c.onConnected()
	return nil
}

// onConnected subscribes and announces the light to Home Assistant.
func (c *ClientMQTT) onConnected() {
	for _, topic := range []string{c.topics.Data, c.topics.Command, c.topics.HACommand} {
		if topic != "" {
			c.sub(topic)
		}
	}
	if err := c.publishDiscovery(); err != nil {
		c.log.With(logger.Fields{"module": "mqtt"}).Errorf("discovery publish: %v", err)
	}
	if err := c.PublishState(); err != nil {
		c.log.With(logger.Fields{"module": "mqtt"}).Errorf("state publish: %v", err)
	}
	if err := c.publish(c.topics.Availability, true, []byte(payloadAvailable)); err != nil {
		c.log.With(logger.Fields{"module": "mqtt"}).Errorf("availability publish: %v", err)
	}
}

func (c *ClientMQTT) connectHandler(_ mqtt.Client) {
	c.log.With(logger.Fields{"module": "mqtt"}).Info("client connected to server")
}

func (c *ClientMQTT) connectLostHandler(_ mqtt.Client, err error) {
	c.log.With(logger.Fields{"module": "mqtt"}).Errorf("server connect lost: %v", err)
	c.lost.Store(true)
}

// messageHandler runs on a paho goroutine. It only queues.
func (c *ClientMQTT) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	in := Message{Topic: msg.Topic(), Payload: msg.Payload()}
	select {
	case c.inbox <- in:
	default:
		c.metrics.QueueDropped.Inc()
		c.log.With(logger.Fields{"module": "mqtt"}).Warnf("inbound queue full, message on %s dropped", in.Topic)
	}
}

func (c *ClientMQTT) sub(topic string) {
	token := c.client.Subscribe(topic, c.cfgClient.Qos, nil)
	c.watch(token, "topic "+topic+" subscription")
}

func (c *ClientMQTT) publish(topic string, retained bool, payload []byte) error {
	if c.state != StateConnected || c.client == nil {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, c.cfgClient.Qos, retained, payload)
	c.watch(token, "publish topic "+topic)
	return nil
}

// watch logs a failed token and marks the connection as lost.
func (c *ClientMQTT) watch(token mqtt.Token, what string) {
	go func() {
		select {
		case <-c.ctx.Done():
			return
		case <-token.Done():
			if err := token.Error(); err != nil {
				c.log.With(logger.Fields{"module": "mqtt"}).Errorf("%s error. %v", what, err)
				c.lost.Store(true)
			}
		}
	}()
}

func (c *ClientMQTT) publishJSON(topic string, retained bool, v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return c.publish(topic, retained, msg)
}

func (c *ClientMQTT) address() string {
	if c.link == nil || !c.link.Connected() {
		return ""
	}
	return c.link.Address()
}

func (c *ClientMQTT) publishDiscovery() error {
	effectList := c.strip.Effects()
	payload := DiscoveryPayload(c.cfgClient, c.topics, c.strip.Layout(), effectList, c.address())
	if err := c.publishJSON(c.topics.Discovery, true, payload); err != nil {
		return err
	}
	c.log.With(logger.Fields{"module": "mqtt"}).Infof("published Home Assistant discovery with %d effects", len(effectList))
	return nil
}

// RepublishDiscovery announces a changed effect list.
func (c *ClientMQTT) RepublishDiscovery() error {
	if c.state != StateConnected {
		return ErrNotConnected
	}
	return c.publishDiscovery()
}

// PublishState publishes the current state right away.
func (c *ClientMQTT) PublishState() error {
	payload := StatePayload(c.strip.State(), c.strip.Layout(), c.strip.LEDCount(), c.strip.Effects())
	if err := c.publishJSON(c.topics.HAState, true, payload); err != nil {
		return err
	}
	c.metrics.StatePublishes.Inc()
	c.dirty = false
	c.log.With(logger.Fields{"module": "mqtt"}).Debugf("published HA state: %+v", payload)
	return nil
}

// MarkDirty records a state change that must be published.
func (c *ClientMQTT) MarkDirty(now time.Time) {
	if !c.dirty {
		c.firstDirty = now
	}
	c.dirty = true
	c.dirtySince = now
}

// Flush publishes a pending state once no change has arrived for the
// debounce interval, so a burst of commands yields one publish with the
// final state. A burst that never goes quiet is still published after
// ten debounce intervals.
func (c *ClientMQTT) Flush(now time.Time) {
	if !c.dirty || c.state != StateConnected {
		return
	}
	quiet := now.Sub(c.dirtySince) >= c.cfgClient.Debounce
	overdue := now.Sub(c.firstDirty) >= 10*c.cfgClient.Debounce
	if !quiet && !overdue {
		return
	}
	if err := c.PublishState(); err != nil {
		c.log.With(logger.Fields{"module": "mqtt"}).Errorf("state publish: %v", err)
	}
}

// PublishStatus sends the heartbeat. It ignores the state debounce.
func (c *ClientMQTT) PublishStatus(now time.Time) error {
	if c.topics.Status == "" {
		return nil
	}
	signal := "unknown"
	if c.link != nil {
		signal = c.link.Signal()
	}
	payload := StatusPayload(now.Sub(c.started), c.strip.Layout(), c.strip.LEDCount(), signal, Protocols{
		UDP:  c.cfgClient.UDPEnabled,
		MQTT: true,
	})
	return c.publishJSON(c.topics.Status, false, payload)
}

// Close announces the device as offline and disconnects.
func (c *ClientMQTT) Close() error {
	if c.client == nil {
		return nil
	}
	if c.state == StateConnected {
		var tokens []mqtt.Token
		if c.topics.Status != "" {
			if msg, err := json.Marshal(Offline{Status: payloadNotAvailable, Timestamp: c.now().Unix()}); err == nil {
				tokens = append(tokens, c.client.Publish(c.topics.Status, c.cfgClient.Qos, false, msg))
			}
		}
		tokens = append(tokens, c.client.Publish(c.topics.Availability, c.cfgClient.Qos, true, []byte(payloadNotAvailable)))
		for _, t := range tokens {
			if !t.WaitTimeout(time.Second) {
				c.log.With(logger.Fields{"module": "mqtt"}).Warn("offline publish timed out")
			} else if err := t.Error(); err != nil {
				c.log.With(logger.Fields{"module": "mqtt"}).Warnf("offline publish: %v", err)
			}
		}
	}
	if c.client.IsConnected() {
		c.client.Disconnect(500)
	}
	c.setState(StateDisconnected)
	c.client = nil
	return nil
}
