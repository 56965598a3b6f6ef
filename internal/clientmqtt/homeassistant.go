package clientmqtt

import (
	"fmt"
	"strings"
	"time"

	"stripctl/internal/pixel"
	"stripctl/internal/strip"
)

// ColorModes returns the supported colour modes for a layout.
func ColorModes(layout pixel.Layout) []string {
	if layout.HasWhite() {
		return []string{"rgbw"}
	}
	return []string{"rgb"}
}

// DiscoveryPayload builds the discovery message. address may be empty.
func DiscoveryPayload(cfg MQTTConf, topics Topics, layout pixel.Layout, effectList []string, address string) Discovery {
	name := cfg.DeviceName
	if name == "" {
		name = "LED Strip"
	}
	d := Discovery{
		Name:                name,
		UniqueID:            cfg.ClientID,
		ObjectID:            strings.ReplaceAll(strings.ToLower(cfg.ClientID), "-", "_"),
		CommandTopic:        topics.HACommand,
		StateTopic:          topics.HAState,
		AvailabilityTopic:   topics.Availability,
		PayloadAvailable:    payloadAvailable,
		PayloadNotAvailable: payloadNotAvailable,
		Schema:              "json",
		Brightness:          true,
		BrightnessScale:     255,
		SupportedColorModes: ColorModes(layout),
		Effect:              true,
		EffectList:          effectList,
		Optimistic:          false,
		Device: Device{
			Identifiers:  []string{cfg.ClientID},
			Manufacturer: "stripctl",
			Model:        fmt.Sprintf("%s LED Controller", layout),
			Name:         fmt.Sprintf("%s (%s)", name, cfg.ClientID),
			SWVersion:    cfg.SWVersion,
		},
	}
	if address != "" {
		d.Device.ConfigurationURL = "http://" + address
	}
	return d
}

// StatePayload reports the structured strip state.
func StatePayload(s strip.State, layout pixel.Layout, ledCount int, effectList []string) LightState {
	ls := LightState{
		State:      "OFF",
		Brightness: s.Brightness,
		Effect:     s.ActiveEffect,
		ColorMode:  "brightness",
		FxList:     effectList,
		LEDCount:   ledCount,
		LEDMode:    layout.String(),
	}
	if s.Power {
		ls.State = "ON"
	}
	if c := s.BaseColor; c != nil {
		ls.Color = &Color{R: c.R, G: c.G, B: c.B}
		ls.ColorMode = "rgb"
		if layout.HasWhite() {
			w := c.W
			ls.Color.W = &w
			ls.ColorMode = "rgbw"
		}
	}
	return ls
}

// StatusPayload is the periodic heartbeat.
func StatusPayload(uptime time.Duration, layout pixel.Layout, ledCount int, signal string, p Protocols) Status {
	return Status{
		Status:    payloadAvailable,
		Uptime:    int64(uptime / time.Second),
		LEDCount:  ledCount,
		LEDMode:   layout.String(),
		Signal:    signal,
		Protocols: p,
	}
}
