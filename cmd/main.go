package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"stripctl/internal/artnet"
	"stripctl/internal/clientmqtt"
	"stripctl/internal/config"
	"stripctl/internal/dispatch"
	"stripctl/internal/logger"
	"stripctl/internal/metrics"
	"stripctl/internal/network"
	"stripctl/internal/pixel"
	"stripctl/internal/scheduler"
	"stripctl/internal/strip"
	"stripctl/internal/udp"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configFile string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:          "stripctl",
		Short:        "LED strip controller for UDP frames, MQTT and Home Assistant",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "configs/conf.toml", "Path to configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Force debug logging")
	root.AddCommand(testerCmd(), versionCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	err := root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

func testerCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tester",
		Short: "Light a growing number of LEDs to find the strip length",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = a.cfg.System.TesterLimit
			}
			s := scheduler.New(a.log, scheduler.Options{}, a.engine, dispatch.New(a.log, a.engine), nil, nil, a.metrics)
			return s.Tester(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Largest LED count to test (default system.tester-limit)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

type app struct {
	cfg     *config.Config
	log     *logger.Log
	metrics *metrics.Metrics
	engine  *strip.Engine
}

// setup reads the configuration and builds the strip with its driver.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v\n", err)
		return nil, err
	}
	if debug {
		cfg.Logger.Debug = true
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v\n", err)
		return nil, err
	}
	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

	layout, warnings, err := pixel.ParseLayout(cfg.LED.Mode)
	if err != nil {
		log.With(logger.Fields{"module": "main"}).Errorf("led.mode %q: %v", cfg.LED.Mode, err)
		return nil, err
	}
	for _, w := range warnings {
		log.With(logger.Fields{"module": "main"}).Warnf("led.mode %q: %s", cfg.LED.Mode, w)
	}

	driver, err := newDriver(ctx, log, cfg, layout)
	if err != nil {
		log.With(logger.Fields{"module": "main"}).Errorf("output driver %q: %v", cfg.Output.Driver, err)
		return nil, err
	}

	m := metrics.New()
	engine, err := strip.NewEngine(log, strip.Options{
		LEDCount:   cfg.LED.Count,
		Layout:     layout,
		Brightness: uint8(cfg.LED.Brightness),
		OnRender:   m.Renders.Inc,
	}, driver)
	if err != nil {
		_ = driver.Close()
		log.With(logger.Fields{"module": "main"}).Errorf("strip: %v", err)
		return nil, err
	}
	for _, id := range cfg.LED.DisabledEffects {
		if err := engine.Unregister(id); err != nil {
			log.With(logger.Fields{"module": "main"}).Warnf("disabled effect %q: %v", id, err)
		}
	}
	log.With(logger.Fields{"module": "main"}).Infof("strip of %d %s LEDs, effects %v", cfg.LED.Count, layout, engine.Effects())

	return &app{cfg: cfg, log: log, metrics: m, engine: engine}, nil
}

func newDriver(ctx context.Context, log *logger.Log, cfg *config.Config, layout pixel.Layout) (strip.Driver, error) {
	switch cfg.Output.Driver {
	case "artnet":
		d, err := artnet.NewDriver(log, ConvertConfigArtNet(cfg.Output.ArtNet), layout)
		if err != nil {
			return nil, err
		}
		if err := d.Start(ctx); err != nil {
			return nil, err
		}
		return d, nil
	case "log":
		return strip.NewLogDriver(log), nil
	default:
		return strip.NopDriver{}, nil
	}
}

func run(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	cfg, log := a.cfg, a.log

	link, err := network.NewHostLink(log, network.Conf{
		Interface: cfg.Network.Interface,
		CIDR:      cfg.Network.CIDR,
		Timeout:   cfg.Network.Timeout.Duration,
	})
	if err != nil {
		log.With(logger.Fields{"module": "network"}).Errorf("%v", err)
		return err
	}

	d := dispatch.New(log, a.engine)
	factory := func(ctx context.Context) (scheduler.Transports, error) {
		var t scheduler.Transports
		if cfg.UDP.Enabled {
			s, err := udp.Listen(log, udp.Conf{
				IP:      cfg.UDP.IP,
				Port:    cfg.UDP.Port,
				Timeout: cfg.UDP.Timeout.Duration,
			}, link)
			if err != nil {
				return t, err
			}
			t.UDP = s
		}
		if cfg.MQTT.Enabled {
			client := clientmqtt.NewClient(log, ConvertConfigClientMQTT(cfg), a.engine, d, clientmqtt.Deps{
				Link:    link,
				Metrics: a.metrics,
			})
			log.With(logger.Fields{"module": "mqtt"}).Debug("NewClient created ok")
			client.Start(ctx)
			t.MQTT = client
		}
		return t, nil
	}

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := a.metrics.Serve(ctx, log, cfg.Metrics.Listen); err != nil {
				log.With(logger.Fields{"module": "metrics"}).Errorf("metrics server: %v", err)
			}
		}()
	}

	s := scheduler.New(log, scheduler.Options{
		Quantum:        cfg.System.Quantum.Duration,
		StatusInterval: cfg.System.StatusInterval.Duration,
		CheckInterval:  cfg.Network.CheckInterval.Duration,
		StartupTest:    cfg.LED.StartupTest,
	}, a.engine, d, link, factory, a.metrics)

	err = s.Run(ctx)
	log.Info("shutdown complete")
	return err
}

// ConvertConfigClientMQTT преобразует структуры.
func ConvertConfigClientMQTT(cfg *config.Config) clientmqtt.MQTTConf {
	return clientmqtt.MQTTConf{
		ClientID:        cfg.MQTT.ClientID,
		Schema:          "tcp",
		Host:            cfg.MQTT.Host,
		Port:            cfg.MQTT.Port,
		User:            cfg.MQTT.User,
		Password:        cfg.MQTT.Password,
		Qos:             cfg.MQTT.Qos,
		KeepAlive:       cfg.MQTT.KeepAlive.Duration,
		ConnectTimeout:  cfg.MQTT.ConnectTimeout.Duration,
		RetryInterval:   cfg.MQTT.RetryInterval.Duration,
		Debounce:        cfg.MQTT.Debounce.Duration,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		DeviceName:      cfg.MQTT.DeviceName,
		DataTopic:       cfg.MQTT.Topics.Data,
		CommandTopic:    cfg.MQTT.Topics.Command,
		StatusTopic:     cfg.MQTT.Topics.Status,
		SWVersion:       Version,
		UDPEnabled:      cfg.UDP.Enabled,
	}
}

// ConvertConfigArtNet преобразует структуры.
func ConvertConfigArtNet(cfg config.ArtNetConf) artnet.Conf {
	return artnet.Conf{
		CIDR:     cfg.CIDR,
		Universe: cfg.Universe,
		MaxFPS:   cfg.MaxFPS,
	}
}
