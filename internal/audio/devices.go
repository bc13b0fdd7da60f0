// Package audio discovers Pulse input sources, applies input/fallback
// selection, and streams PCM from the chosen source.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ErrNoDevices is returned when Pulse reports no input sources at all.
var ErrNoDevices = errors.New("no audio input devices found")

func connect() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("rehearse"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, ErrNoDevices
	}

	input = normalizePreference(input)
	fallback = normalizePreference(fallback)

	var defaultDevice *Device
	for i := range devices {
		if devices[i].Default {
			defaultDevice = &devices[i]
			break
		}
	}

	primary, err := resolvePreference(devices, defaultDevice, input)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input %w", err)
	}
	if usable(*primary) {
		return Selection{Device: *primary}, nil
	}

	reason := unusableReason(*primary)
	secondary, err := resolvePreference(devices, defaultDevice, fallback)
	if err != nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and audio.fallback %w", primary.ID, reason, err)
	}
	if !secondary.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", secondary.ID)
	}
	if secondary.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", secondary.ID)
	}

	return Selection{
		Device:   *secondary,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, secondary.ID),
		Fallback: primary.ID != secondary.ID,
	}, nil
}

func normalizePreference(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "default"
	}
	return raw
}

// resolvePreference maps "default" to the Pulse default source and anything
// else to the first device whose id or description contains the term.
func resolvePreference(devices []Device, defaultDevice *Device, term string) (*Device, error) {
	if term == "default" {
		if defaultDevice == nil {
			return nil, errors.New("default source is unavailable")
		}
		return defaultDevice, nil
	}
	for i := range devices {
		if deviceMatches(devices[i], term) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%q did not match any device", term)
}

func usable(device Device) bool {
	return device.Available && !device.Muted
}

func unusableReason(device Device) string {
	if device.Muted {
		return "muted"
	}
	return "unavailable"
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
