package clientmqtt

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"stripctl/internal/pixel"
	"stripctl/internal/strip"
)

func TestTopics(t *testing.T) {
	tp := NewTopics(MQTTConf{ClientID: "strip-0a0b0c", DiscoveryPrefix: "ha/", DataTopic: "led/data"})
	if tp.Discovery != "ha/light/strip-0a0b0c/config" || tp.HACommand != "ha/light/strip-0a0b0c/set" ||
		tp.HAState != "ha/light/strip-0a0b0c/state" || tp.Availability != "ha/light/strip-0a0b0c/availability" {
		t.Errorf("topics = %+v", tp)
	}
	if tp.Data != "led/data" || tp.Status != "" {
		t.Errorf("plain topics = %+v", tp)
	}
}

func TestDiscoveryPayload(t *testing.T) {
	cfg := MQTTConf{ClientID: "Strip-AB-12", SWVersion: "1.2.0"}
	d := DiscoveryPayload(cfg, NewTopics(cfg), pixel.MustParseLayout("GRBW"), []string{"none", "rainbow"}, "")
	if d.ObjectID != "strip_ab_12" || d.Name != "LED Strip" || d.Schema != "json" {
		t.Errorf("discovery = %+v", d)
	}
	if len(d.SupportedColorModes) != 1 || d.SupportedColorModes[0] != "rgbw" {
		t.Errorf("color modes = %v", d.SupportedColorModes)
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "configuration_url") {
		t.Errorf("configuration_url present without an address: %s", b)
	}
	if d.Device.SWVersion != "1.2.0" || d.Device.Model != "GRBW LED Controller" {
		t.Errorf("device = %+v", d.Device)
	}
}

func TestStatePayload(t *testing.T) {
	rgb := pixel.MustParseLayout("RGB")
	off := StatePayload(strip.State{Brightness: 40, ActiveEffect: "none"}, rgb, 10, nil)
	if off.State != "OFF" || off.ColorMode != "brightness" || off.Color != nil {
		t.Errorf("off state = %+v", off)
	}

	c := pixel.Color{R: 1, G: 2, B: 3, W: 4}
	st := strip.State{Power: true, Brightness: 200, BaseColor: &c, ActiveEffect: "rainbow"}
	on := StatePayload(st, rgb, 10, []string{"none", "rainbow"})
	if on.State != "ON" || on.ColorMode != "rgb" || on.Color.W != nil || on.Effect != "rainbow" || on.LEDMode != "RGB" {
		t.Errorf("rgb state = %+v", on)
	}

	w := StatePayload(st, pixel.MustParseLayout("RGBW"), 10, nil)
	if w.ColorMode != "rgbw" || w.Color.W == nil || *w.Color.W != 4 {
		t.Errorf("rgbw state = %+v", w)
	}
}

func TestStatusPayload(t *testing.T) {
	s := StatusPayload(90*time.Second+500*time.Millisecond, pixel.MustParseLayout("GRB"), 60, "unknown", Protocols{MQTT: true})
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"status":"online","uptime":90,"led_count":60,"led_mode":"GRB","wifi_rssi":"unknown","protocols":{"udp":false,"mqtt":true}}`
	if string(b) != want {
		t.Errorf("status = %s\nwant %s", b, want)
	}
}
