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

// Package mcpserver exposes the simulated home over the Model Context Protocol.
//
// The server advertises five tools (list_devices, control_light,
// set_temperature, control_door_lock, activate_scene), one resource
// (home://device_status) and one prompt (home_status_report). It can be
// served over stdio, which is how the chat client launches it as a
// subprocess, or over streamable HTTP.
//
// Validation failures are returned as tool results flagged with isError so
// the model can read them and recover; they never become JSON-RPC errors.
// Earlier home servers returned the same "❌ Error: ..." text as an
// ordinary successful result; clients that only read the text content see
// identical output.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/homelink/pkg/home"
	"github.com/kadirpekel/homelink/pkg/tool"
	"github.com/kadirpekel/homelink/pkg/tool/functiontool"
)

const (
	// DefaultName is the server name reported during initialisation.
	DefaultName = "Home Automation"

	// DeviceStatusURI is the URI of the device status resource.
	DeviceStatusURI = "home://device_status"

	// StatusReportPrompt is the name of the status report prompt.
	StatusReportPrompt = "home_status_report"
)

const statusReportTemplate = `Please create a friendly home status report. Use the list_devices tool to get current device states, then provide:

1. 🏠 **Current Status**: Brief overview of all devices
2. 💡 **Suggestions**: Any recommendations for comfort or energy savings
3. 🔒 **Security**: Check if the home is properly secured

Make the report conversational and helpful, as if you're a smart home assistant.`

type options struct {
	name    string
	version string
}

// Option configures the server.
type Option func(*options)

// WithName overrides the server name.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithVersion sets the server version.
func WithVersion(version string) Option {
	return func(o *options) {
		if version != "" {
			o.version = version
		}
	}
}

// New builds an MCP server backed by the given home.
func New(h *home.Home, opts ...Option) (*server.MCPServer, error) {
	o := options{name: DefaultName, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	s := server.NewMCPServer(o.name, o.version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)

	tools, err := HomeTools(h)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if err := addTool(s, t); err != nil {
			return nil, err
		}
	}

	s.AddResource(
		mcp.NewResource(DeviceStatusURI, "device_status",
			mcp.WithResourceDescription("Get current status of all devices in JSON format"),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			text, err := h.Status().JSON()
			if err != nil {
				return nil, fmt.Errorf("failed to encode device status: %w", err)
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      DeviceStatusURI,
					MIMEType: "application/json",
					Text:     text,
				},
			}, nil
		},
	)

	s.AddPrompt(
		mcp.NewPrompt(StatusReportPrompt,
			mcp.WithPromptDescription("Generate a comprehensive home status report"),
		),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return mcp.NewGetPromptResult(
				"Generate a comprehensive home status report",
				[]mcp.PromptMessage{
					mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(statusReportTemplate)),
				},
			), nil
		},
	)

	return s, nil
}

func addTool(s *server.MCPServer, t tool.CallableTool) error {
	schema, err := json.Marshal(t.Schema())
	if err != nil {
		return fmt.Errorf("failed to encode schema for %s: %w", t.Name(), err)
	}

	s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), toolHandler(t))
	return nil
}

// toolHandler adapts a CallableTool to the mcp-go handler signature.
func toolHandler(t tool.CallableTool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		out, err := t.Call(ctx, req.GetArguments())
		if err != nil {
			slog.Warn("Tool call rejected", "tool", t.Name(), "error", err)
			return mcp.NewToolResultError(errorText(err)), nil
		}

		slog.Debug("Tool call completed", "tool", t.Name(), "duration", time.Since(start))

		if text, ok := out[functiontool.ResultKey].(string); ok && len(out) == 1 {
			return mcp.NewToolResultText(text), nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(errorText(err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// errorText renders an error the way tool output reports failures.
func errorText(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r != utf8.RuneError {
		msg = string(unicode.ToUpper(r)) + msg[size:]
	}
	return "❌ Error: " + strings.TrimSpace(msg)
}
