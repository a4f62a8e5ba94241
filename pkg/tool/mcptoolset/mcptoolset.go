// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcptoolset provides a Toolset implementation for MCP servers.
//
// The toolset uses lazy initialization - the MCP connection is only
// established when Tools() is first called.
//
// Transport Support:
//   - stdio: spawns the server as a subprocess and talks over its stdin/stdout
//   - streamable-http: connects to a running server's HTTP endpoint
package mcptoolset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/homelink/pkg/tool"
)

const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"

	// DefaultTimeout bounds HTTP requests to the server.
	DefaultTimeout = 30 * time.Second

	defaultClientName    = "homelink"
	defaultClientVersion = "dev"
)

// ErrNotConnected is returned when an operation needs a live connection.
var ErrNotConnected = errors.New("MCP client not connected")

// Config configures an MCP toolset.
type Config struct {
	// Name identifies this toolset.
	Name string

	// Transport specifies the MCP transport (stdio, streamable-http).
	// Inferred from Command/URL when empty.
	Transport string

	// Command for stdio transport.
	Command string

	// Args for stdio transport.
	Args []string

	// Env for stdio transport, added to the parent environment.
	Env map[string]string

	// URL is the MCP endpoint for the streamable-http transport.
	URL string

	// Filter limits which tools are exposed.
	Filter []string

	// CacheTools keeps the first tool listing for the lifetime of the
	// connection instead of re-listing on every Tools call.
	CacheTools bool

	// Timeout for HTTP requests (default: 30s).
	Timeout time.Duration

	// ClientName and ClientVersion are reported during the handshake.
	ClientName    string
	ClientVersion string
}

// Toolset is an MCP-backed toolset with lazy initialization.
type Toolset struct {
	cfg    Config
	filter tool.Predicate

	mu         sync.Mutex
	client     *client.Client
	serverInfo mcp.Implementation
	tools      []tool.Tool
	connected  bool
}

// New creates a new MCP toolset.
func New(cfg Config) (*Toolset, error) {
	if cfg.Transport == "" {
		if cfg.Command != "" {
			cfg.Transport = TransportStdio
		} else {
			cfg.Transport = TransportStreamableHTTP
		}
	}

	switch cfg.Transport {
	case TransportStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("command is required for stdio transport")
		}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("url is required for streamable-http transport")
		}
	default:
		return nil, fmt.Errorf("unsupported transport %q (valid: stdio, streamable-http)", cfg.Transport)
	}

	if cfg.Name == "" {
		cfg.Name = "mcp"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = defaultClientVersion
	}

	return &Toolset{
		cfg:    cfg,
		filter: tool.StringPredicate(cfg.Filter),
	}, nil
}

// Name returns the toolset name.
func (t *Toolset) Name() string {
	return t.cfg.Name
}

// Connected reports whether the MCP session is established.
func (t *Toolset) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// ServerInfo returns the implementation info reported by the server.
func (t *Toolset) ServerInfo() mcp.Implementation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.serverInfo
}

// Connect establishes the MCP session if it is not already open.
func (t *Toolset) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}
	if err := t.connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MCP server: %w", err)
	}
	return nil
}

// Tools returns the available tools, connecting lazily if needed.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
		}
		return t.tools, nil
	}

	if t.cfg.CacheTools {
		return t.tools, nil
	}

	tools, err := t.listTools(ctx)
	if err != nil {
		return nil, err
	}
	t.tools = tools
	return tools, nil
}

// connect opens the transport, performs the handshake and lists tools.
// Callers must hold t.mu.
func (t *Toolset) connect(ctx context.Context) error {
	mcpClient, err := t.newClient()
	if err != nil {
		return err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    t.cfg.ClientName,
		Version: t.cfg.ClientVersion,
	}

	initResp, err := mcpClient.Initialize(ctx, initReq)
	if err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}

	t.client = mcpClient
	t.serverInfo = initResp.ServerInfo

	tools, err := t.listTools(ctx)
	if err != nil {
		_ = mcpClient.Close()
		t.client = nil
		return err
	}

	t.tools = tools
	t.connected = true

	slog.Info("Connected to MCP server",
		"name", t.cfg.Name,
		"transport", t.cfg.Transport,
		"server", initResp.ServerInfo.Name,
		"tools", len(tools),
	)

	return nil
}

func (t *Toolset) newClient() (*client.Client, error) {
	switch t.cfg.Transport {
	case TransportStdio:
		stdio := transport.NewStdio(t.cfg.Command, convertEnv(t.cfg.Env), t.cfg.Args...)
		mcpClient := client.NewClient(stdio)

		// The subprocess is bound to the context passed to Start, so it must
		// outlive the request that triggered the connection.
		if err := mcpClient.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to start MCP server %q: %w", t.cfg.Command, err)
		}
		go drainStderr(t.cfg.Name, stdio.Stderr())

		return mcpClient, nil

	default:
		mcpClient, err := client.NewStreamableHttpClient(t.cfg.URL,
			transport.WithHTTPTimeout(t.cfg.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP client: %w", err)
		}
		if err := mcpClient.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to start MCP client: %w", err)
		}
		return mcpClient, nil
	}
}

// listTools fetches and wraps the server's tools. Callers must hold t.mu.
func (t *Toolset) listTools(ctx context.Context) ([]tool.Tool, error) {
	listResp, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var tools []tool.Tool
	for _, mcpTool := range listResp.Tools {
		w := &mcpToolWrapper{
			toolset: t,
			name:    mcpTool.Name,
			desc:    mcpTool.Description,
			schema:  convertSchema(mcpTool),
		}
		if !t.filter(w) {
			continue
		}
		tools = append(tools, w)
	}

	return tools, nil
}

// ReadResource returns the text contents of a server resource.
func (t *Toolset) ReadResource(ctx context.Context, uri string) (string, error) {
	mcpClient, err := t.connectedClient(ctx)
	if err != nil {
		return "", err
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	resp, err := mcpClient.ReadResource(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to read resource %s: %w", uri, err)
	}

	var texts []string
	for _, c := range resp.Contents {
		switch rc := c.(type) {
		case mcp.TextResourceContents:
			texts = append(texts, rc.Text)
		case *mcp.TextResourceContents:
			texts = append(texts, rc.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// GetPrompt renders a server prompt into plain text.
func (t *Toolset) GetPrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	mcpClient, err := t.connectedClient(ctx)
	if err != nil {
		return "", err
	}

	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.GetPrompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to get prompt %s: %w", name, err)
	}

	var texts []string
	for _, msg := range resp.Messages {
		if text, ok := textOf(msg.Content); ok {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

func (t *Toolset) connectedClient(ctx context.Context) (*client.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
		}
	}
	return t.client, nil
}

// Close closes the MCP connection. For stdio this terminates the subprocess.
// The toolset can be reconnected afterwards.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.client != nil {
		err = t.client.Close()
		slog.Info("Disconnected from MCP server", "name", t.cfg.Name)
	}
	t.client = nil
	t.connected = false
	t.tools = nil
	return err
}

func (t *Toolset) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.mu.Lock()
	mcpClient := t.client
	t.mu.Unlock()

	if mcpClient == nil {
		return nil, ErrNotConnected
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	return mcpClient.CallTool(ctx, req)
}

// convertEnv converts map to a sorted slice of "KEY=VALUE".
func convertEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// drainStderr forwards the subprocess's stderr to the debug log so the
// child never blocks on a full pipe.
func drainStderr(name string, r io.Reader) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		slog.Debug("MCP server stderr", "name", name, "line", scanner.Text())
	}
}

// convertSchema returns the tool's input schema as a map, guaranteeing an
// object schema with a properties member.
func convertSchema(t mcp.Tool) map[string]any {
	var raw []byte
	if len(t.RawInputSchema) > 0 {
		raw = t.RawInputSchema
	} else {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw = data
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		schema = map[string]any{}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if props, ok := schema["properties"]; !ok || props == nil {
		schema["properties"] = map[string]any{}
	}
	return schema
}

func textOf(c mcp.Content) (string, bool) {
	switch tc := c.(type) {
	case mcp.TextContent:
		return tc.Text, true
	case *mcp.TextContent:
		return tc.Text, true
	}
	return "", false
}

// mcpToolWrapper wraps an MCP tool as tool.CallableTool.
type mcpToolWrapper struct {
	toolset *Toolset
	name    string
	desc    string
	schema  map[string]any
}

func (w *mcpToolWrapper) Name() string {
	return w.name
}

func (w *mcpToolWrapper) Description() string {
	return w.desc
}

func (w *mcpToolWrapper) Schema() map[string]any {
	return w.schema
}

// Call executes the tool. Tool-level failures reported by the server are
// returned as {"error": text} so the model can read them.
func (w *mcpToolWrapper) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	resp, err := w.toolset.callTool(ctx, w.name, args)
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}
	return parseToolResponse(resp), nil
}

func parseToolResponse(resp *mcp.CallToolResult) map[string]any {
	var texts []string
	for _, content := range resp.Content {
		if text, ok := textOf(content); ok {
			texts = append(texts, text)
		}
	}
	text := strings.Join(texts, "\n")

	if resp.IsError {
		if text == "" {
			text = "unknown error"
		}
		return map[string]any{"error": text}
	}
	return map[string]any{"result": text}
}

var _ tool.CallableTool = (*mcpToolWrapper)(nil)
