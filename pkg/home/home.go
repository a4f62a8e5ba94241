// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package home models the simulated smart home exposed by the MCP server.
//
// A Home holds three devices (a dimmable light, a thermostat and a door lock)
// plus a short log of recent device events. Every operation returns the
// human-readable sentence that is handed back to the model as tool output.
//
// Validation failures are reported as sentinel errors so that transports can
// decide how to surface them:
//
//	msg, err := h.ControlLight("on", home.Brightness(80))
//	if errors.Is(err, home.ErrBrightnessOutOfRange) {
//	    // ...
//	}
package home

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Device identifiers.
const (
	LivingRoomLight = "living_room_light"
	Thermostat      = "thermostat"
	FrontDoor       = "front_door"

	// sceneControl is the pseudo-device scene activations are logged under.
	sceneControl = "scene_control"
)

// Validation bounds.
const (
	MinBrightness  = 0
	MaxBrightness  = 100
	MinTemperature = 16.0
	MaxTemperature = 30.0

	// MaxEvents is the number of events retained in the log.
	MaxEvents = 10

	// RecentEvents is the number of events included in a status snapshot.
	RecentEvents = 5

	// EventTimeLayout formats event timestamps.
	EventTimeLayout = "2006-01-02 15:04:05"
)

var (
	ErrBrightnessOutOfRange  = errors.New("brightness must be between 0 and 100")
	ErrTemperatureOutOfRange = errors.New("temperature must be between 16°C and 30°C")
	ErrInvalidAction         = errors.New("invalid action")
	ErrUnknownScene          = errors.New("unknown scene")
)

// deviceOrder fixes the listing order.
var deviceOrder = []string{LivingRoomLight, Thermostat, FrontDoor}

// Option configures a Home.
type Option func(*Home)

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Home) {
		h.now = now
	}
}

// Home is the in-memory device state. It is safe for concurrent use.
type Home struct {
	mu      sync.Mutex
	devices map[string]*Device
	events  []Event
	now     func() time.Time
}

// New creates a home with the default device states.
func New(opts ...Option) *Home {
	h := &Home{
		devices: defaultDevices(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func defaultDevices() map[string]*Device {
	return map[string]*Device{
		LivingRoomLight: {
			ID:         LivingRoomLight,
			Name:       "Living Room Light",
			Type:       TypeLight,
			State:      StateOff,
			Brightness: 50,
		},
		Thermostat: {
			ID:                Thermostat,
			Name:              "Home Thermostat",
			Type:              TypeThermostat,
			Temperature:       22.0,
			TargetTemperature: 22.0,
		},
		FrontDoor: {
			ID:    FrontDoor,
			Name:  "Front Door Lock",
			Type:  TypeLock,
			State: StateLocked,
		},
	}
}

// Brightness is a helper for the optional brightness argument of ControlLight.
func Brightness(v int) *int {
	return &v
}

// Device returns a copy of the device with the given id.
func (h *Home) Device(id string) (Device, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.devices[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Devices returns copies of all devices in listing order.
func (h *Home) Devices() []Device {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Device, 0, len(deviceOrder))
	for _, id := range deviceOrder {
		out = append(out, *h.devices[id])
	}
	return out
}

// Events returns a copy of the event log, oldest first.
func (h *Home) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// ListDevices renders every device and its current state.
func (h *Home) ListDevices() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	b.WriteString("📱 Home Devices Status:\n\n")

	for _, id := range deviceOrder {
		d := h.devices[id]
		fmt.Fprintf(&b, "🔹 %s (%s)\n", d.Name, d.ID)

		switch d.Type {
		case TypeLight:
			fmt.Fprintf(&b, "   State: %s\n", d.State)
			fmt.Fprintf(&b, "   Brightness: %d%%\n", d.Brightness)
		case TypeThermostat:
			fmt.Fprintf(&b, "   Current: %s°C\n", formatTemp(d.Temperature))
			fmt.Fprintf(&b, "   Target: %s°C\n", formatTemp(d.TargetTemperature))
		case TypeLock:
			fmt.Fprintf(&b, "   State: %s\n", d.State)
		}

		b.WriteString("\n")
	}

	return b.String()
}

// ControlLight switches the living room light. Brightness, when given, is
// applied before the action; a brightness of zero always turns the light off.
func (h *Home) ControlLight(action string, brightness *int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch action {
	case "on", "off", "toggle":
	default:
		return "", fmt.Errorf("%w: light action %q (expected on, off or toggle)", ErrInvalidAction, action)
	}

	light := h.devices[LivingRoomLight]

	if brightness != nil {
		if *brightness < MinBrightness || *brightness > MaxBrightness {
			return "", ErrBrightnessOutOfRange
		}
		light.Brightness = *brightness
	}

	switch action {
	case "on":
		light.State = StateOn
	case "off":
		light.State = StateOff
	case "toggle":
		if light.State == StateOff {
			light.State = StateOn
		} else {
			light.State = StateOff
		}
	}

	if brightness != nil && *brightness == 0 {
		light.State = StateOff
	}

	logAction := "Light turned " + light.State
	result := "✅ Living Room Light is now " + light.State
	if light.State == StateOn {
		logAction += fmt.Sprintf(" at %d%%", light.Brightness)
		result += fmt.Sprintf(" at %d%% brightness", light.Brightness)
	}
	h.logEvent(LivingRoomLight, logAction)

	return result, nil
}

// SetTemperature changes the thermostat target. The current temperature
// drifts a fifth of the way towards the new target.
func (h *Home) SetTemperature(target float64) (string, error) {
	if math.IsNaN(target) || target < MinTemperature || target > MaxTemperature {
		return "", ErrTemperatureOutOfRange
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.devices[Thermostat]
	oldTarget := t.TargetTemperature
	t.TargetTemperature = target
	t.Temperature = round1(t.Temperature + (target-t.Temperature)*0.2)

	h.logEvent(Thermostat, fmt.Sprintf("Temperature set to %s°C", formatTemp(target)))

	return fmt.Sprintf("🌡️ Thermostat set to %s°C (was %s°C)\nCurrent temperature: %s°C",
		formatTemp(target), formatTemp(oldTarget), formatTemp(t.Temperature)), nil
}

// ControlDoorLock locks or unlocks the front door.
func (h *Home) ControlDoorLock(action string) (string, error) {
	var state string
	switch action {
	case "lock":
		state = StateLocked
	case "unlock":
		state = StateUnlocked
	default:
		return "", fmt.Errorf("%w: door action %q (expected lock or unlock)", ErrInvalidAction, action)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.devices[FrontDoor].State = state
	h.logEvent(FrontDoor, "Door "+action+"ed")

	return "🚪 Front door is now " + state, nil
}

// ActivateScene applies one of the preset scenes to all devices. Scene
// targets are fixed and are not subject to the thermostat range check.
func (h *Home) ActivateScene(scene string) (string, error) {
	preset, ok := scenes[scene]
	if !ok {
		return "", fmt.Errorf("%w: %q (expected evening, morning or away)", ErrUnknownScene, scene)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	light := h.devices[LivingRoomLight]
	light.State = preset.lightState
	if preset.brightness != nil {
		light.Brightness = *preset.brightness
	}
	h.devices[Thermostat].TargetTemperature = preset.target
	h.devices[FrontDoor].State = preset.doorState

	h.logEvent(sceneControl, fmt.Sprintf("Scene '%s' activated", scene))

	return fmt.Sprintf("🎬 Scene '%s' activated!\n✅ %s", scene, strings.Join(preset.summary, "\n✅ ")), nil
}

// Status returns a snapshot of all devices and the most recent events.
func (h *Home) Status() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	devices := make(DeviceSet, 0, len(deviceOrder))
	for _, id := range deviceOrder {
		devices = append(devices, *h.devices[id])
	}

	start := len(h.events) - RecentEvents
	if start < 0 {
		start = 0
	}
	recent := make([]Event, len(h.events)-start)
	copy(recent, h.events[start:])

	return Snapshot{
		Devices:      devices,
		LastUpdated:  h.now().Format(time.RFC3339),
		RecentEvents: recent,
	}
}

// logEvent appends to the bounded event log. Callers must hold h.mu.
func (h *Home) logEvent(deviceID, action string) {
	name := deviceID
	if d, ok := h.devices[deviceID]; ok {
		name = d.Name
	}

	h.events = append(h.events, Event{
		Timestamp: h.now().Format(EventTimeLayout),
		Device:    name,
		Action:    action,
	})
	if len(h.events) > MaxEvents {
		h.events = h.events[len(h.events)-MaxEvents:]
	}
}

// formatTemp renders whole numbers with one decimal place ("22.0") and
// keeps any other value at its shortest representation.
func formatTemp(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
