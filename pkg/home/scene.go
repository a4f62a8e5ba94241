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

// Scene names.
const (
	SceneEvening = "evening"
	SceneMorning = "morning"
	SceneAway    = "away"
)

// Scenes lists the available scene names.
var Scenes = []string{SceneEvening, SceneMorning, SceneAway}

type scene struct {
	lightState string
	brightness *int // nil keeps the current brightness
	target     float64
	doorState  string
	summary    []string
}

var scenes = map[string]scene{
	SceneEvening: {
		lightState: StateOn,
		brightness: Brightness(70),
		target:     19.0,
		doorState:  StateLocked,
		summary:    []string{"Living room light on at 70%", "Temperature set to 19°C", "Front door locked"},
	},
	SceneMorning: {
		lightState: StateOn,
		brightness: Brightness(90),
		target:     23.0,
		doorState:  StateUnlocked,
		summary:    []string{"Living room light on at 90%", "Temperature set to 23°C", "Front door unlocked"},
	},
	SceneAway: {
		lightState: StateOff,
		target:     15.0,
		doorState:  StateLocked,
		summary:    []string{"Light turned off", "Temperature lowered to 15°C", "Front door locked"},
	},
}
