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

// Package tool defines interfaces for tools that agents can invoke.
//
// Tools are the actions an agent may take on behalf of the user, such as
// switching a light or reading the thermostat. The same interfaces are used
// on both sides of the MCP pipe:
//
//	Tool (base)
//	  └── CallableTool - synchronous execution with a JSON schema
//
//	Toolset            - a named, lazily resolved group of tools
//
// # Creating Tools
//
//	// Typed function tool (schema reflected from struct tags)
//	t, err := functiontool.New(cfg, myFunc)
//
//	// Tools discovered from an MCP server (lazy connection)
//	ts, err := mcptoolset.New(mcptoolset.Config{...})
package tool

import (
	"context"
)

// Tool defines the base interface for a callable tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// Used by LLMs to decide when to use this tool.
	Description() string
}

// CallableTool extends Tool with synchronous execution capability.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments.
	// Returns the result as a map and any error that occurred.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema for the tool's parameters.
	// Returns nil if the tool takes no parameters.
	Schema() map[string]any
}

// Toolset groups related tools and provides dynamic resolution.
// Toolsets enable lazy loading - tools are resolved only when needed.
type Toolset interface {
	// Name returns the name of this toolset.
	Name() string

	// Tools returns the available tools.
	Tools(ctx context.Context) ([]Tool, error)
}

// Predicate determines whether a tool should be available to the LLM.
type Predicate func(tool Tool) bool

// StringPredicate creates a Predicate that allows only named tools.
// An empty list allows everything.
func StringPredicate(allowedTools []string) Predicate {
	if len(allowedTools) == 0 {
		return AllowAll()
	}

	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	return func(tool Tool) bool {
		return allowed[tool.Name()]
	}
}

// AllowAll returns a Predicate that allows all tools.
func AllowAll() Predicate {
	return func(tool Tool) bool {
		return true
	}
}

// Filter returns the tools matching the predicate, preserving order.
func Filter(tools []Tool, p Predicate) []Tool {
	var out []Tool
	for _, t := range tools {
		if p(t) {
			out = append(out, t)
		}
	}
	return out
}

// Definition represents a tool definition for LLM function calling.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
	}

	if ct, ok := t.(CallableTool); ok {
		def.Parameters = ct.Schema()
	}

	return def
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Resolve collects tools from every toolset into a name-indexed map.
// Later toolsets do not override tools already registered under a name.
func Resolve(ctx context.Context, toolsets []Toolset) ([]Tool, map[string]Tool, error) {
	var ordered []Tool
	index := make(map[string]Tool)

	for _, ts := range toolsets {
		tools, err := ts.Tools(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, t := range tools {
			if _, exists := index[t.Name()]; exists {
				continue
			}
			index[t.Name()] = t
			ordered = append(ordered, t)
		}
	}

	return ordered, index, nil
}
