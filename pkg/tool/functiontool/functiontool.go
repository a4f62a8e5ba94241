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

// Package functiontool creates tools from typed Go functions.
//
// The parameter schema is reflected from the argument struct's json and
// jsonschema tags, so the schema advertised to clients cannot drift from the
// type the handler decodes into.
//
//	type DoorArgs struct {
//	    Action string `json:"action" jsonschema:"required,enum=lock,enum=unlock"`
//	}
//
//	doorTool, err := functiontool.New(
//	    functiontool.Config{Name: "control_door_lock", Description: "Lock or unlock the front door"},
//	    func(ctx context.Context, args DoorArgs) (map[string]any, error) {
//	        return functiontool.Text(h.ControlDoorLock(args.Action))
//	    },
//	)
package functiontool

import (
	"context"
	"fmt"

	"github.com/kadirpekel/homelink/pkg/tool"
)

// ResultKey is the map key under which Text stores a plain-text result.
const ResultKey = "result"

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string
}

// New creates a CallableTool from a typed function.
func New[Args any](cfg Config, fn func(context.Context, Args) (map[string]any, error)) (tool.CallableTool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// Text wraps a string-returning operation into a tool result.
func Text(s string, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{ResultKey: s}, nil
}

type functionTool[Args any] struct {
	config Config
	fn     func(context.Context, Args) (map[string]any, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string {
	return t.config.Name
}

func (t *functionTool[Args]) Description() string {
	return t.config.Description
}

func (t *functionTool[Args]) Schema() map[string]any {
	return t.schema
}

// Call decodes args into the typed struct and invokes the function.
func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	var typedArgs Args
	if err := mapToStruct(args, &typedArgs); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}

	return t.fn(ctx, typedArgs)
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

var _ tool.CallableTool = (*functionTool[struct{}])(nil)
