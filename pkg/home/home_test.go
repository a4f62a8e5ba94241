package home

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

func newTestHome() *Home {
	return New(WithClock(func() time.Time { return fixedTime }))
}

func TestNew_DefaultState(t *testing.T) {
	h := newTestHome()

	devices := h.Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, LivingRoomLight, devices[0].ID)
	assert.Equal(t, Thermostat, devices[1].ID)
	assert.Equal(t, FrontDoor, devices[2].ID)

	light, _ := h.Device(LivingRoomLight)
	assert.Equal(t, StateOff, light.State)
	assert.Equal(t, 50, light.Brightness)

	thermo, _ := h.Device(Thermostat)
	assert.Equal(t, 22.0, thermo.Temperature)
	assert.Equal(t, 22.0, thermo.TargetTemperature)

	door, _ := h.Device(FrontDoor)
	assert.Equal(t, StateLocked, door.State)

	assert.Empty(t, h.Events())
}

func TestListDevices(t *testing.T) {
	h := newTestHome()

	want := "📱 Home Devices Status:\n\n" +
		"🔹 Living Room Light (living_room_light)\n   State: off\n   Brightness: 50%\n\n" +
		"🔹 Home Thermostat (thermostat)\n   Current: 22.0°C\n   Target: 22.0°C\n\n" +
		"🔹 Front Door Lock (front_door)\n   State: locked\n\n"
	assert.Equal(t, want, h.ListDevices())
}

func TestControlLight(t *testing.T) {
	t.Run("on with brightness", func(t *testing.T) {
		h := newTestHome()
		msg, err := h.ControlLight("on", Brightness(80))
		require.NoError(t, err)
		assert.Equal(t, "✅ Living Room Light is now on at 80% brightness", msg)

		events := h.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "Living Room Light", events[0].Device)
		assert.Equal(t, "Light turned on at 80%", events[0].Action)
		assert.Equal(t, "2025-06-01 18:30:00", events[0].Timestamp)
	})

	t.Run("off keeps brightness", func(t *testing.T) {
		h := newTestHome()
		msg, err := h.ControlLight("off", nil)
		require.NoError(t, err)
		assert.Equal(t, "✅ Living Room Light is now off", msg)

		light, _ := h.Device(LivingRoomLight)
		assert.Equal(t, 50, light.Brightness)
		assert.Equal(t, "Light turned off", h.Events()[0].Action)
	})

	t.Run("toggle flips state", func(t *testing.T) {
		h := newTestHome()
		msg, err := h.ControlLight("toggle", nil)
		require.NoError(t, err)
		assert.Equal(t, "✅ Living Room Light is now on at 50% brightness", msg)

		msg, err = h.ControlLight("toggle", nil)
		require.NoError(t, err)
		assert.Equal(t, "✅ Living Room Light is now off", msg)
	})

	t.Run("zero brightness forces off", func(t *testing.T) {
		h := newTestHome()
		msg, err := h.ControlLight("on", Brightness(0))
		require.NoError(t, err)
		assert.Equal(t, "✅ Living Room Light is now off", msg)

		light, _ := h.Device(LivingRoomLight)
		assert.Equal(t, StateOff, light.State)
		assert.Equal(t, 0, light.Brightness)
	})

	t.Run("brightness out of range leaves state untouched", func(t *testing.T) {
		for _, b := range []int{-1, 101} {
			h := newTestHome()
			_, err := h.ControlLight("on", Brightness(b))
			assert.ErrorIs(t, err, ErrBrightnessOutOfRange)

			light, _ := h.Device(LivingRoomLight)
			assert.Equal(t, StateOff, light.State)
			assert.Equal(t, 50, light.Brightness)
			assert.Empty(t, h.Events())
		}
	})

	t.Run("boundaries accepted", func(t *testing.T) {
		h := newTestHome()
		_, err := h.ControlLight("on", Brightness(100))
		require.NoError(t, err)
		light, _ := h.Device(LivingRoomLight)
		assert.Equal(t, 100, light.Brightness)
	})

	t.Run("invalid action", func(t *testing.T) {
		h := newTestHome()
		_, err := h.ControlLight("dim", nil)
		assert.ErrorIs(t, err, ErrInvalidAction)
		assert.Empty(t, h.Events())
	})
}

func TestSetTemperature(t *testing.T) {
	t.Run("moves current towards target", func(t *testing.T) {
		h := newTestHome()
		msg, err := h.SetTemperature(25)
		require.NoError(t, err)
		assert.Equal(t, "🌡️ Thermostat set to 25.0°C (was 22.0°C)\nCurrent temperature: 22.6°C", msg)

		thermo, _ := h.Device(Thermostat)
		assert.Equal(t, 25.0, thermo.TargetTemperature)
		assert.InDelta(t, 22.6, thermo.Temperature, 1e-9)
		assert.Equal(t, "Temperature set to 25.0°C", h.Events()[0].Action)
		assert.Equal(t, "Home Thermostat", h.Events()[0].Device)
	})

	t.Run("fractional target", func(t *testing.T) {
		h := newTestHome()
		msg, err := h.SetTemperature(20.5)
		require.NoError(t, err)
		assert.Contains(t, msg, "set to 20.5°C (was 22.0°C)")
		assert.Contains(t, msg, "Current temperature: 21.7°C")
	})

	t.Run("range is inclusive", func(t *testing.T) {
		h := newTestHome()
		_, err := h.SetTemperature(16)
		assert.NoError(t, err)
		_, err = h.SetTemperature(30)
		assert.NoError(t, err)
	})

	t.Run("out of range", func(t *testing.T) {
		for _, v := range []float64{15.9, 30.1, -4} {
			h := newTestHome()
			_, err := h.SetTemperature(v)
			assert.ErrorIs(t, err, ErrTemperatureOutOfRange, "target %v", v)

			thermo, _ := h.Device(Thermostat)
			assert.Equal(t, 22.0, thermo.TargetTemperature)
		}
	})
}

func TestControlDoorLock(t *testing.T) {
	h := newTestHome()

	msg, err := h.ControlDoorLock("unlock")
	require.NoError(t, err)
	assert.Equal(t, "🚪 Front door is now unlocked", msg)

	msg, err = h.ControlDoorLock("lock")
	require.NoError(t, err)
	assert.Equal(t, "🚪 Front door is now locked", msg)

	events := h.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Door unlocked", events[0].Action)
	assert.Equal(t, "Door locked", events[1].Action)
	assert.Equal(t, "Front Door Lock", events[1].Device)

	_, err = h.ControlDoorLock("open")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestActivateScene(t *testing.T) {
	tests := []struct {
		scene      string
		lightState string
		brightness int
		target     float64
		doorState  string
		summary    string
	}{
		{SceneEvening, StateOn, 70, 19, StateLocked, "✅ Living room light on at 70%\n✅ Temperature set to 19°C\n✅ Front door locked"},
		{SceneMorning, StateOn, 90, 23, StateUnlocked, "✅ Living room light on at 90%\n✅ Temperature set to 23°C\n✅ Front door unlocked"},
		{SceneAway, StateOff, 50, 15, StateLocked, "✅ Light turned off\n✅ Temperature lowered to 15°C\n✅ Front door locked"},
	}

	for _, tt := range tests {
		t.Run(tt.scene, func(t *testing.T) {
			h := newTestHome()
			msg, err := h.ActivateScene(tt.scene)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("🎬 Scene '%s' activated!\n%s", tt.scene, tt.summary), msg)

			light, _ := h.Device(LivingRoomLight)
			assert.Equal(t, tt.lightState, light.State)
			assert.Equal(t, tt.brightness, light.Brightness)

			thermo, _ := h.Device(Thermostat)
			assert.Equal(t, tt.target, thermo.TargetTemperature)
			assert.Equal(t, 22.0, thermo.Temperature)

			door, _ := h.Device(FrontDoor)
			assert.Equal(t, tt.doorState, door.State)

			events := h.Events()
			require.Len(t, events, 1)
			assert.Equal(t, "scene_control", events[0].Device)
			assert.Equal(t, fmt.Sprintf("Scene '%s' activated", tt.scene), events[0].Action)
		})
	}

	t.Run("unknown scene", func(t *testing.T) {
		h := newTestHome()
		_, err := h.ActivateScene("party")
		assert.ErrorIs(t, err, ErrUnknownScene)
		assert.Empty(t, h.Events())
	})
}

func TestEventLog_Bounded(t *testing.T) {
	h := newTestHome()
	for i := 0; i < 14; i++ {
		_, err := h.ControlLight("on", Brightness(i))
		require.NoError(t, err)
	}

	events := h.Events()
	require.Len(t, events, MaxEvents)
	// Oldest retained is the fifth call (brightness 4).
	assert.Equal(t, "Light turned on at 4%", events[0].Action)
	assert.Equal(t, "Light turned on at 13%", events[MaxEvents-1].Action)

	snap := h.Status()
	require.Len(t, snap.RecentEvents, RecentEvents)
	assert.Equal(t, "Light turned on at 9%", snap.RecentEvents[0].Action)
}

func TestStatus_JSON(t *testing.T) {
	h := newTestHome()
	_, err := h.ControlDoorLock("unlock")
	require.NoError(t, err)

	out, err := h.Status().JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "2025-06-01T18:30:00Z", decoded["last_updated"])

	lightAt := strings.Index(out, `"`+LivingRoomLight+`":`)
	thermoAt := strings.Index(out, `"`+Thermostat+`":`)
	doorAt := strings.Index(out, `"`+FrontDoor+`":`)
	require.True(t, lightAt >= 0 && thermoAt >= 0 && doorAt >= 0)
	assert.Less(t, lightAt, thermoAt)
	assert.Less(t, thermoAt, doorAt)

	devices := decoded["devices"].(map[string]any)
	light := devices[LivingRoomLight].(map[string]any)
	assert.Equal(t, "Living Room Light", light["name"])
	assert.Equal(t, "light", light["type"])
	assert.Equal(t, float64(50), light["brightness"])
	assert.NotContains(t, light, "temperature")

	thermo := devices[Thermostat].(map[string]any)
	assert.Equal(t, 22.0, thermo["target_temperature"])
	assert.NotContains(t, thermo, "state")

	door := devices[FrontDoor].(map[string]any)
	assert.Equal(t, "unlocked", door["state"])

	events := decoded["recent_events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "Door unlocked", events[0].(map[string]any)["action"])
}

func TestHome_Concurrent(t *testing.T) {
	h := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.ControlLight("toggle", Brightness(i))
			_, _ = h.SetTemperature(20)
			_ = h.ListDevices()
			_ = h.Status()
		}(i)
	}
	wg.Wait()

	assert.Len(t, h.Events(), MaxEvents)
}
