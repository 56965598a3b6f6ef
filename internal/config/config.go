package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config структура конфигурации.
type Config struct {
	Logger  LogConf     // Logger - конфигурация регистратора.
	LED     LEDConf     `toml:"led"`     // LED - параметры ленты.
	Output  OutputConf  `toml:"output"`  // Output - драйвер вывода пикселей.
	UDP     UDPConf     `toml:"udp"`     // UDP - приём сырых кадров.
	MQTT    MQTTConf    // MQTT - конфигурация MQTT клиента.
	System  SystemConf  `toml:"system"`  // System - общие параметры.
	Network NetworkConf `toml:"network"` // Network - контроль сетевого подключения.
	Metrics MetricsConf `toml:"metrics"` // Metrics - экспорт метрик Prometheus.
}

// LogConf структура конфигурации.
type LogConf struct {
	Level string `toml:"log-level"` // Level - уровень логирования.
	Debug bool   `toml:"-"`         // Debug - переопределяется из System.Debug.
}

// LEDConf структура конфигурации ленты.
type LEDConf struct {
	Count           int      `toml:"count"`            // Count - количество светодиодов.
	Mode            string   `toml:"mode"`             // Mode - порядок каналов (RGB, GRB, RGBW, WRGB...).
	Brightness      int      `toml:"brightness"`       // Brightness - яркость при запуске (0-255).
	StartupTest     bool     `toml:"startup-test"`     // StartupTest - тест R/G/B при запуске.
	DisabledEffects []string `toml:"disabled-effects"` // DisabledEffects - эффекты, убираемые из реестра.
}

// OutputConf структура конфигурации драйвера.
type OutputConf struct {
	Driver string     `toml:"driver"` // Driver - artnet, log или none.
	ArtNet ArtNetConf `toml:"artnet"`
}

// ArtNetConf структура конфигурации Art-Net вывода.
type ArtNetConf struct {
	CIDR     string `toml:"cidr"`     // CIDR - сеть, в которой ищется локальный адрес Art-Net.
	Universe uint16 `toml:"universe"` // Universe - первый универс (старший байт - Net, младший - SubUni).
	MaxFPS   int    `toml:"max-fps"`  // MaxFPS - ограничение частоты отправки.
}

// UDPConf структура конфигурации UDP сервера.
type UDPConf struct {
	Enabled bool     `toml:"enabled"`
	IP      string   `toml:"ip"`      // IP - адрес привязки.
	Port    int      `toml:"port"`    // Port - порт.
	Timeout Duration `toml:"timeout"` // Timeout - время ожидания одного приёма.
}

// MQTTConf структура конфигурации.
type MQTTConf struct {
	Enabled         bool       `toml:"enabled"`
	ClientID        string     `toml:"clientID"`         // ClientID - имя клиента.
	Host            string     `toml:"server"`           // Host - адрес MQTT сервера.
	Port            string     `toml:"port"`             // Port - порт MQTT сервера.
	User            string     `toml:"user"`             // User - логин для подключения к MQTT серверу.
	Password        string     `toml:"password"`         // Password - пароль для подключения к MQTT серверу.
	Qos             byte       `toml:"qos"`              // Qos - качество обслуживания.
	KeepAlive       Duration   `toml:"keepalive"`        // KeepAlive - период keepalive.
	RetryInterval   Duration   `toml:"retry-interval"`   // RetryInterval - пауза между попытками подключения.
	ConnectTimeout  Duration   `toml:"connect-timeout"`  // ConnectTimeout - ожидание CONNACK.
	Debounce        Duration   `toml:"debounce"`         // Debounce - минимальная пауза перед публикацией состояния.
	DiscoveryPrefix string     `toml:"discovery-prefix"` // DiscoveryPrefix - префикс Home Assistant.
	DeviceName      string     `toml:"device-name"`      // DeviceName - имя устройства в Home Assistant.
	Topics          TopicsConf `toml:"topics"`
}

// TopicsConf структура конфигурации топиков.
type TopicsConf struct {
	Data    string `toml:"led_data"`    // Data - сырые кадры.
	Command string `toml:"led_command"` // Command - JSON команды.
	Status  string `toml:"status"`      // Status - heartbeat, пустая строка отключает.
}

// SystemConf структура общих параметров.
type SystemConf struct {
	Debug          bool     `toml:"debug"`
	StatusInterval Duration `toml:"status-interval"` // StatusInterval - период heartbeat.
	Quantum        Duration `toml:"quantum"`         // Quantum - пауза в конце итерации цикла.
	TesterLimit    int      `toml:"tester-limit"`    // TesterLimit - предел режима тестера.
}

// NetworkConf структура контроля сети.
type NetworkConf struct {
	Interface     string   `toml:"interface"`      // Interface - имя интерфейса, пусто - любой.
	CIDR          string   `toml:"cidr"`           // CIDR - допустимая сеть, пусто - любая.
	Timeout       Duration `toml:"timeout"`        // Timeout - ожидание подключения.
	CheckInterval Duration `toml:"check-interval"` // CheckInterval - период проверки.
}

// MetricsConf структура экспорта метрик.
type MetricsConf struct {
	Listen string `toml:"listen"` // Listen - адрес HTTP, пусто - отключено.
}

// Duration wraps time.Duration so it can be written as "100ms" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when the file omits a value.
func Default() Config {
	return Config{
		Logger: LogConf{Level: "info"},
		LED: LEDConf{
			Count:       4,
			Mode:        "RGB",
			Brightness:  255,
			StartupTest: true,
		},
		Output: OutputConf{
			Driver: "log",
			ArtNet: ArtNetConf{CIDR: "192.168.6.0/24", MaxFPS: 40},
		},
		UDP: UDPConf{
			IP:      "0.0.0.0",
			Port:    8000,
			Timeout: Duration{time.Millisecond},
		},
		MQTT: MQTTConf{
			Port:            "1883",
			KeepAlive:       Duration{60 * time.Second},
			RetryInterval:   Duration{30 * time.Second},
			ConnectTimeout:  Duration{5 * time.Second},
			Debounce:        Duration{100 * time.Millisecond},
			DiscoveryPrefix: "homeassistant",
			Topics: TopicsConf{
				Data:    "led/data",
				Command: "led/command",
				Status:  "led/status",
			},
		},
		System: SystemConf{
			StatusInterval: Duration{30 * time.Second},
			Quantum:        Duration{10 * time.Millisecond},
			TesterLimit:    1000,
		},
		Network: NetworkConf{
			Timeout:       Duration{20 * time.Second},
			CheckInterval: Duration{10 * time.Second},
		},
	}
}

// NewConfig конструктор.
func NewConfig(path string) (*Config, error) {
	// default values
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return &cfg, err
	}
	cfg.Logger.Debug = cfg.System.Debug
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = GenerateClientID()
	}
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

// Validate checks the values the rest of the program relies on.
func (c *Config) Validate() error {
	if c.LED.Count <= 0 {
		return fmt.Errorf("%w: led.count must be positive, got %d", ErrInvalid, c.LED.Count)
	}
	if strings.TrimSpace(c.LED.Mode) == "" {
		return fmt.Errorf("%w: led.mode is empty", ErrInvalid)
	}
	if c.LED.Brightness < 0 || c.LED.Brightness > 255 {
		return fmt.Errorf("%w: led.brightness %d out of range 0-255", ErrInvalid, c.LED.Brightness)
	}
	switch c.Output.Driver {
	case "artnet", "log", "none":
	default:
		return fmt.Errorf("%w: unknown output driver %q", ErrInvalid, c.Output.Driver)
	}
	if c.UDP.Enabled && (c.UDP.Port <= 0 || c.UDP.Port > 65535) {
		return fmt.Errorf("%w: udp.port %d out of range", ErrInvalid, c.UDP.Port)
	}
	if c.MQTT.Enabled && c.MQTT.Host == "" {
		return fmt.Errorf("%w: mqtt.server is required when mqtt is enabled", ErrInvalid)
	}
	if c.MQTT.Qos > 2 {
		return fmt.Errorf("%w: mqtt.qos %d out of range", ErrInvalid, c.MQTT.Qos)
	}
	if c.MQTT.RetryInterval.Duration <= 0 {
		return fmt.Errorf("%w: mqtt.retry-interval must be positive", ErrInvalid)
	}
	if c.System.Quantum.Duration <= 0 {
		return fmt.Errorf("%w: system.quantum must be positive", ErrInvalid)
	}
	return nil
}

// GenerateClientID builds "strip-xxxxxx" from the first hardware address
// found, or from a random uuid when the host has none.
func GenerateClientID() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) < 3 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			mac := strings.ReplaceAll(iface.HardwareAddr.String(), ":", "")
			return "strip-" + mac[len(mac)-6:]
		}
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "strip-" + id[:6]
}
