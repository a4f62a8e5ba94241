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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/homelink/pkg/home"
)

func newTestClient(t *testing.T) (*client.Client, *home.Home) {
	t.Helper()

	h := home.New()
	s, err := New(h, WithVersion("test"))
	require.NoError(t, err)

	c, err := client.NewInProcessClient(s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0.0.1"}
	initResp, err := c.Initialize(ctx, initReq)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, initResp.ServerInfo.Name)

	return c, h
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)

	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n"), resp.IsError
}

func TestServer_ListTools(t *testing.T) {
	c, _ := newTestClient(t)

	resp, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)

	var names []string
	for _, tl := range resp.Tools {
		names = append(names, tl.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolListDevices, ToolControlLight, ToolSetTemperature, ToolControlDoorLock, ToolActivateScene,
	}, names)

	for _, tl := range resp.Tools {
		if tl.Name != ToolControlLight {
			continue
		}
		raw, err := json.Marshal(tl.InputSchema)
		if len(tl.RawInputSchema) > 0 {
			raw, err = tl.RawInputSchema, nil
		}
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"toggle"`)
		assert.Contains(t, string(raw), `"brightness"`)
	}
}

func TestServer_ToolCalls(t *testing.T) {
	c, h := newTestClient(t)

	text, isErr := callTool(t, c, ToolListDevices, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "Living Room Light (living_room_light)")

	text, isErr = callTool(t, c, ToolControlLight, map[string]any{"action": "on", "brightness": 75})
	assert.False(t, isErr)
	assert.Equal(t, "✅ Living Room Light is now on at 75% brightness", text)

	text, isErr = callTool(t, c, ToolSetTemperature, map[string]any{"target_temperature": 21.5})
	assert.False(t, isErr)
	assert.Contains(t, text, "Thermostat set to 21.5°C (was 22.0°C)")

	text, isErr = callTool(t, c, ToolControlDoorLock, map[string]any{"action": "unlock"})
	assert.False(t, isErr)
	assert.Equal(t, "🚪 Front door is now unlocked", text)

	text, isErr = callTool(t, c, ToolActivateScene, map[string]any{"scene": "away"})
	assert.False(t, isErr)
	assert.Contains(t, text, "Scene 'away' activated!")

	light, _ := h.Device(home.LivingRoomLight)
	assert.Equal(t, home.StateOff, light.State)
	assert.Len(t, h.Events(), 4)
}

func TestServer_DomainErrorsAreToolResults(t *testing.T) {
	c, h := newTestClient(t)

	text, isErr := callTool(t, c, ToolControlLight, map[string]any{"action": "on", "brightness": 150})
	assert.True(t, isErr)
	assert.Equal(t, "❌ Error: Brightness must be between 0 and 100", text)

	text, isErr = callTool(t, c, ToolSetTemperature, map[string]any{"target_temperature": 35})
	assert.True(t, isErr)
	assert.Equal(t, "❌ Error: Temperature must be between 16°C and 30°C", text)

	_, isErr = callTool(t, c, ToolActivateScene, map[string]any{"scene": "party"})
	assert.True(t, isErr)

	_, isErr = callTool(t, c, ToolControlLight, map[string]any{"action": "on", "brightness": "dim"})
	assert.True(t, isErr)

	assert.Empty(t, h.Events())
}

func TestServer_DeviceStatusResource(t *testing.T) {
	c, _ := newTestClient(t)

	_, _ = callTool(t, c, ToolControlDoorLock, map[string]any{"action": "unlock"})

	req := mcp.ReadResourceRequest{}
	req.Params.URI = DeviceStatusURI
	resp, err := c.ReadResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Contents, 1)

	tc, ok := resp.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", tc.MIMEType)

	var status struct {
		Devices      map[string]map[string]any `json:"devices"`
		LastUpdated  string                    `json:"last_updated"`
		RecentEvents []home.Event              `json:"recent_events"`
	}
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &status))
	assert.Equal(t, "unlocked", status.Devices[home.FrontDoor]["state"])
	assert.NotEmpty(t, status.LastUpdated)
	require.Len(t, status.RecentEvents, 1)
	assert.Equal(t, "Door unlocked", status.RecentEvents[0].Action)
}

func TestServer_StatusReportPrompt(t *testing.T) {
	c, _ := newTestClient(t)

	req := mcp.GetPromptRequest{}
	req.Params.Name = StatusReportPrompt
	resp, err := c.GetPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, mcp.RoleUser, resp.Messages[0].Role)

	tc, ok := resp.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, tc.Text, "Use the list_devices tool")
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "❌ Error: Brightness must be between 0 and 100", errorText(home.ErrBrightnessOutOfRange))
	assert.Equal(t, "❌ Error: ", errorText(errors.New("")))
}

func TestHTTPHandler_Health(t *testing.T) {
	s, err := New(home.New())
	require.NoError(t, err)

	srv := httptest.NewServer(NewHTTPHandler(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
