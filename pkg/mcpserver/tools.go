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

package mcpserver

import (
	"context"
	"fmt"

	"github.com/kadirpekel/homelink/pkg/home"
	"github.com/kadirpekel/homelink/pkg/tool"
	"github.com/kadirpekel/homelink/pkg/tool/functiontool"
)

// Tool names.
const (
	ToolListDevices     = "list_devices"
	ToolControlLight    = "control_light"
	ToolSetTemperature  = "set_temperature"
	ToolControlDoorLock = "control_door_lock"
	ToolActivateScene   = "activate_scene"
)

type controlLightArgs struct {
	Action     string `json:"action" jsonschema:"required,enum=on,enum=off,enum=toggle,description=Switch the light on or off or toggle its current state"`
	Brightness *int   `json:"brightness,omitempty" jsonschema:"minimum=0,maximum=100,description=Optional brightness percentage (0-100)"`
}

type setTemperatureArgs struct {
	TargetTemperature float64 `json:"target_temperature" jsonschema:"required,minimum=16,maximum=30,description=Target temperature in °C"`
}

type controlDoorLockArgs struct {
	Action string `json:"action" jsonschema:"required,enum=lock,enum=unlock"`
}

type activateSceneArgs struct {
	Scene string `json:"scene" jsonschema:"required,enum=evening,enum=morning,enum=away"`
}

// HomeTools returns the home operations as callable tools, in the order they
// are advertised.
func HomeTools(h *home.Home) ([]tool.CallableTool, error) {
	builders := []func() (tool.CallableTool, error){
		func() (tool.CallableTool, error) {
			return functiontool.New(
				functiontool.Config{
					Name:        ToolListDevices,
					Description: "List all available devices and their current states",
				},
				func(ctx context.Context, _ struct{}) (map[string]any, error) {
					return functiontool.Text(h.ListDevices(), nil)
				},
			)
		},
		func() (tool.CallableTool, error) {
			return functiontool.New(
				functiontool.Config{
					Name:        ToolControlLight,
					Description: "Control the living room light (on/off/toggle) and optionally set brightness (0-100)",
				},
				func(ctx context.Context, args controlLightArgs) (map[string]any, error) {
					return functiontool.Text(h.ControlLight(args.Action, args.Brightness))
				},
			)
		},
		func() (tool.CallableTool, error) {
			return functiontool.New(
				functiontool.Config{
					Name:        ToolSetTemperature,
					Description: "Set the target temperature for the thermostat (16-30°C)",
				},
				func(ctx context.Context, args setTemperatureArgs) (map[string]any, error) {
					return functiontool.Text(h.SetTemperature(args.TargetTemperature))
				},
			)
		},
		func() (tool.CallableTool, error) {
			return functiontool.New(
				functiontool.Config{
					Name:        ToolControlDoorLock,
					Description: "Lock or unlock the front door",
				},
				func(ctx context.Context, args controlDoorLockArgs) (map[string]any, error) {
					return functiontool.Text(h.ControlDoorLock(args.Action))
				},
			)
		},
		func() (tool.CallableTool, error) {
			return functiontool.New(
				functiontool.Config{
					Name:        ToolActivateScene,
					Description: "Activate a preset scene that controls multiple devices",
				},
				func(ctx context.Context, args activateSceneArgs) (map[string]any, error) {
					return functiontool.Text(h.ActivateScene(args.Scene))
				},
			)
		},
	}

	tools := make([]tool.CallableTool, 0, len(builders))
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build home tool: %w", err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}
