package clientmqtt

import (
	"fmt"
	"strings"
	"time"
)

type MQTTConf struct {
	ClientID string // ClientID - уникальное имя клиента для брокеров.
	Schema   string // Schema - тип подключения.
	Host     string // Host - адрес MQTT сервера.
	Port     string // Port - порт MQTT сервера.
	User     string // User - логин для подключения к MQTT серверу.
	Password string // Password - пароль для подключения к MQTT серверу.
	Qos      byte   // Qos - качество обслуживания.

	KeepAlive      time.Duration // KeepAlive - период keepalive.
	ConnectTimeout time.Duration // ConnectTimeout - ожидание подключения.
	RetryInterval  time.Duration // RetryInterval - не чаще одной попытки за интервал.
	Debounce       time.Duration // Debounce - тишина перед публикацией состояния.

	DiscoveryPrefix string // DiscoveryPrefix - префикс Home Assistant.
	DataTopic       string // DataTopic - сырые кадры.
	CommandTopic    string // CommandTopic - JSON команды.
	StatusTopic     string // StatusTopic - heartbeat, пустая строка отключает.

	DeviceName string // DeviceName - имя в Home Assistant.
	SWVersion  string // SWVersion - версия прошивки в карточке устройства.
	UDPEnabled bool   // UDPEnabled - для отчёта о протоколах.
}

// State of the broker connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const (
	payloadAvailable    = "online"
	payloadNotAvailable = "offline"
)

// Topics are all topic names the session uses.
type Topics struct {
	Data         string
	Command      string
	Status       string
	Discovery    string
	HACommand    string
	HAState      string
	Availability string
}

// NewTopics derives the Home Assistant topics from the prefix and client id.
func NewTopics(cfg MQTTConf) Topics {
	base := fmt.Sprintf("%s/light/%s", strings.TrimSuffix(cfg.DiscoveryPrefix, "/"), cfg.ClientID)
	return Topics{
		Data:         cfg.DataTopic,
		Command:      cfg.CommandTopic,
		Status:       cfg.StatusTopic,
		Discovery:    base + "/config",
		HACommand:    base + "/set",
		HAState:      base + "/state",
		Availability: base + "/availability",
	}
}

// Device is the device block of the discovery message.
type Device struct {
	Identifiers      []string `json:"identifiers"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model"`
	Name             string   `json:"name"`
	SWVersion        string   `json:"sw_version"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
}

// Discovery is the retained Home Assistant MQTT discovery payload.
type Discovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	ObjectID            string   `json:"object_id"`
	CommandTopic        string   `json:"command_topic"`
	StateTopic          string   `json:"state_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	PayloadAvailable    string   `json:"payload_available"`
	PayloadNotAvailable string   `json:"payload_not_available"`
	Schema              string   `json:"schema"`
	Brightness          bool     `json:"brightness"`
	BrightnessScale     int      `json:"brightness_scale"`
	SupportedColorModes []string `json:"supported_color_modes"`
	Effect              bool     `json:"effect"`
	EffectList          []string `json:"effect_list"`
	Optimistic          bool     `json:"optimistic"`
	Device              Device   `json:"device"`
}

// Color is the colour object of the state payload.
type Color struct {
	R uint8  `json:"r"`
	G uint8  `json:"g"`
	B uint8  `json:"b"`
	W *uint8 `json:"w,omitempty"`
}

// LightState is the retained state payload.
type LightState struct {
	State      string   `json:"state"`
	Brightness uint8    `json:"brightness"`
	Effect     string   `json:"effect"`
	ColorMode  string   `json:"color_mode"`
	Color      *Color   `json:"color,omitempty"`
	FxList     []string `json:"fx_list"`
	LEDCount   int      `json:"led_count"`
	LEDMode    string   `json:"led_mode"`
}

// Protocols reports which transports are enabled.
type Protocols struct {
	UDP  bool `json:"udp"`
	MQTT bool `json:"mqtt"`
}

// Status is the heartbeat payload.
type Status struct {
	Status    string    `json:"status"`
	Uptime    int64     `json:"uptime"`
	LEDCount  int       `json:"led_count"`
	LEDMode   string    `json:"led_mode"`
	Signal    string    `json:"wifi_rssi"`
	Protocols Protocols `json:"protocols"`
}

// Offline is published on the status topic at shutdown.
type Offline struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}
