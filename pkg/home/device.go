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

package home

import (
	"bytes"
	"encoding/json"
)

// DeviceType identifies the kind of device.
type DeviceType string

const (
	TypeLight      DeviceType = "light"
	TypeThermostat DeviceType = "thermostat"
	TypeLock       DeviceType = "lock"
)

// Device states.
const (
	StateOn       = "on"
	StateOff      = "off"
	StateLocked   = "locked"
	StateUnlocked = "unlocked"
)

// Device is a single simulated device. Which fields are meaningful depends
// on Type: lights use State and Brightness, thermostats use the two
// temperatures, locks use State.
type Device struct {
	ID                string
	Name              string
	Type              DeviceType
	State             string
	Brightness        int
	Temperature       float64
	TargetTemperature float64
}

// MarshalJSON emits only the fields that apply to the device type.
func (d Device) MarshalJSON() ([]byte, error) {
	switch d.Type {
	case TypeLight:
		return json.Marshal(struct {
			Name       string     `json:"name"`
			Type       DeviceType `json:"type"`
			State      string     `json:"state"`
			Brightness int        `json:"brightness"`
		}{d.Name, d.Type, d.State, d.Brightness})
	case TypeThermostat:
		return json.Marshal(struct {
			Name              string     `json:"name"`
			Type              DeviceType `json:"type"`
			Temperature       float64    `json:"temperature"`
			TargetTemperature float64    `json:"target_temperature"`
		}{d.Name, d.Type, d.Temperature, d.TargetTemperature})
	default:
		return json.Marshal(struct {
			Name  string     `json:"name"`
			Type  DeviceType `json:"type"`
			State string     `json:"state"`
		}{d.Name, d.Type, d.State})
	}
}

// Event is an entry in the device event log.
type Event struct {
	Timestamp string `json:"timestamp"`
	Device    string `json:"device"`
	Action    string `json:"action"`
}

// DeviceSet encodes as a JSON object keyed by device ID, keeping slice order.
type DeviceSet []Device

func (s DeviceSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(d.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Snapshot is the payload of the device status resource.
type Snapshot struct {
	Devices      DeviceSet `json:"devices"`
	LastUpdated  string    `json:"last_updated"`
	RecentEvents []Event   `json:"recent_events"`
}

// JSON renders the snapshot as indented JSON.
func (s Snapshot) JSON() (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
