package main

import (
	"testing"
	"time"

	"stripctl/internal/config"
)

func TestConvertConfigClientMQTT(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Host = "broker.local"
	cfg.MQTT.DeviceName = "Kitchen LEDs"
	cfg.MQTT.RetryInterval.Duration = 15 * time.Second

	conf := ConvertConfigClientMQTT(&cfg)
	if conf.DeviceName != "Kitchen LEDs" || conf.Host != "broker.local" {
		t.Errorf("conf = %+v", conf)
	}
	if conf.RetryInterval != 15*time.Second || conf.Schema != "tcp" {
		t.Errorf("retry = %v schema = %q", conf.RetryInterval, conf.Schema)
	}
}
