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

// Package session manages the client side of a home automation chat: the
// agent, the MCP server connection that gives it tools, and the
// conversations routed through it.
//
// The lifecycle mirrors a chat front-end:
//   - Initialise builds the agent without tools
//   - StartServer launches the MCP server and rebuilds the agent with its tools
//   - StopServer tears the server down and rebuilds the agent without tools
//   - Send forwards one user message into a conversation
//   - Reset clears a conversation
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/kadirpekel/homelink/pkg/agent"
	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/tool"
	"github.com/kadirpekel/homelink/pkg/tool/mcptoolset"
)

// DefaultConversationID names the conversation used by Send and Reset.
const DefaultConversationID = "default"

// Status messages.
const (
	MsgInitialised   = "AI Agent initialised successfully! (No MCP tools available yet)"
	MsgServerStarted = "MCP Server started! AI Agent now has access to home automation tools."
	MsgServerStopped = "MCP Server stopped. AI Agent now works without tools (general assistance only)."
	MsgReset         = "Conversation reset successfully!"
)

var (
	// ErrNotInitialised is returned by Send before Initialise.
	ErrNotInitialised = errors.New("LLM not initialised. Please restart the application.")

	// ErrServerRunning is returned by StartServer when a server is already connected.
	ErrServerRunning = errors.New("MCP server is already running")

	// ErrServerNotFound is returned when the server command cannot be resolved.
	ErrServerNotFound = errors.New("MCP server not found")
)

// AgentConfig holds the agent settings applied on every rebuild.
type AgentConfig struct {
	Name                    string
	InstructionWithTools    string
	InstructionWithoutTools string
	MaxTurns                int
	Stream                  bool
	MaxHistoryTokens        int
	Generate                *model.GenerateConfig
}

// Config configures a Manager.
type Config struct {
	// Model is shared by every agent the manager builds.
	Model model.LLM

	Agent AgentConfig

	// Server describes how to reach the MCP server.
	Server mcptoolset.Config

	// History stores conversation turns. Defaults to a MemoryStore.
	History HistoryStore
}

// Status is a snapshot of the manager state.
type Status struct {
	Initialised   bool     `json:"initialised"`
	ServerRunning bool     `json:"server_running"`
	Server        string   `json:"server,omitempty"`
	Tools         []string `json:"tools"`
	GroupID       string   `json:"group_id"`
	Turns         int      `json:"turns"`
}

// Manager owns the agent, the MCP connection and the conversations.
type Manager struct {
	cfg     Config
	history HistoryStore

	mu        sync.RWMutex
	agent     *agent.Agent
	toolset   *mcptoolset.Toolset
	toolNames []string

	convMu        sync.Mutex
	conversations map[string]*agent.Conversation
}

// NewManager creates a Manager. Call Initialise before Send.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.History == nil {
		cfg.History = NewMemoryStore()
	}
	return &Manager{
		cfg:           cfg,
		history:       cfg.History,
		conversations: make(map[string]*agent.Conversation),
	}, nil
}

// Initialise builds the agent without tools.
func (m *Manager) Initialise(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rebuildLocked(); err != nil {
		return "", fmt.Errorf("error initialising LLM: %w", err)
	}
	slog.Info("Agent initialised", "agent", m.agent.Name(), "model", m.cfg.Model.Name())
	return MsgInitialised, nil
}

// StartServer connects the MCP server, discovers its tools and rebuilds the
// agent with them.
func (m *Manager) StartServer(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.toolset != nil {
		return "", ErrServerRunning
	}
	if err := resolveServer(m.cfg.Server); err != nil {
		return "", err
	}

	ts, err := mcptoolset.New(m.cfg.Server)
	if err != nil {
		return "", fmt.Errorf("error starting MCP server: %w", err)
	}

	tools, err := ts.Tools(ctx)
	if err != nil {
		ts.Close()
		return "", fmt.Errorf("error starting MCP server: %w", err)
	}

	m.toolset = ts
	m.toolNames = toolNames(tools)
	if err := m.rebuildLocked(); err != nil {
		ts.Close()
		m.toolset = nil
		m.toolNames = nil
		return "", fmt.Errorf("error starting MCP server: %w", err)
	}

	slog.Info("MCP server connected", "server", ts.ServerInfo().Name, "tools", m.toolNames)
	return MsgServerStarted, nil
}

// StopServer closes the MCP connection and rebuilds the agent without tools.
// Stopping a stopped server succeeds.
func (m *Manager) StopServer(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closeErr error
	if m.toolset != nil {
		closeErr = m.toolset.Close()
		m.toolset = nil
		m.toolNames = nil
	}

	if m.agent != nil {
		if err := m.rebuildLocked(); err != nil {
			return "", fmt.Errorf("error stopping server: %w", err)
		}
	}
	if closeErr != nil {
		slog.Warn("MCP server did not shut down cleanly", "error", closeErr)
	}
	return MsgServerStopped, nil
}

// Send forwards text into the default conversation.
func (m *Manager) Send(ctx context.Context, text string, opts ...agent.RunOption) (*agent.Result, error) {
	return m.SendTo(ctx, DefaultConversationID, text, opts...)
}

// SendTo forwards text into the named conversation and records the visible
// turn in the history store.
func (m *Manager) SendTo(ctx context.Context, conversationID, text string, opts ...agent.RunOption) (*agent.Result, error) {
	m.mu.RLock()
	a := m.agent
	m.mu.RUnlock()

	if a == nil {
		return nil, ErrNotInitialised
	}

	conv, err := m.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	result, err := conv.Send(ctx, a, text, opts...)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := m.history.Append(ctx, conversationID,
		Entry{Role: model.RoleUser, Content: text, CreatedAt: now},
		Entry{Role: model.RoleAssistant, Content: result.FinalOutput, CreatedAt: now},
	); err != nil {
		slog.Warn("Failed to record conversation history", "conversation", conversationID, "error", err)
	}
	return result, nil
}

// Reset clears the default conversation.
func (m *Manager) Reset(ctx context.Context) (string, error) {
	return m.ResetConversation(ctx, DefaultConversationID)
}

// ResetConversation clears the named conversation and its stored history.
func (m *Manager) ResetConversation(ctx context.Context, conversationID string) (string, error) {
	m.convMu.Lock()
	conv, ok := m.conversations[conversationID]
	m.convMu.Unlock()

	if ok {
		conv.Reset()
	}
	if err := m.history.Clear(ctx, conversationID); err != nil {
		return "", fmt.Errorf("failed to clear history: %w", err)
	}
	return MsgReset, nil
}

// History returns the stored turns of a conversation.
func (m *Manager) History(ctx context.Context, conversationID string) ([]Entry, error) {
	return m.history.List(ctx, conversationID)
}

// Status reports the manager state for the default conversation.
func (m *Manager) Status() Status {
	m.mu.RLock()
	st := Status{
		Initialised:   m.agent != nil,
		ServerRunning: m.toolset != nil,
		Tools:         slices.Clone(m.toolNames),
	}
	if m.toolset != nil {
		st.Server = m.toolset.ServerInfo().Name
	}
	m.mu.RUnlock()

	m.convMu.Lock()
	if conv, ok := m.conversations[DefaultConversationID]; ok {
		st.GroupID = conv.GroupID()
		st.Turns = conv.Turns()
	}
	m.convMu.Unlock()
	return st
}

// Agent returns the current agent, nil before Initialise.
func (m *Manager) Agent() *agent.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agent
}

// Toolset returns the connected MCP toolset, nil when stopped.
func (m *Manager) Toolset() *mcptoolset.Toolset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.toolset
}

// SetInstructions replaces the instruction overrides and rebuilds the agent.
func (m *Manager) SetInstructions(withTools, withoutTools string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg.Agent.InstructionWithTools = withTools
	m.cfg.Agent.InstructionWithoutTools = withoutTools
	if m.agent == nil {
		return nil
	}
	return m.rebuildLocked()
}

// Close stops the server, closes the model and the history store.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	if _, err := m.StopServer(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.cfg.Model.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close model: %w", err))
	}
	if err := m.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close history: %w", err))
	}

	m.mu.Lock()
	m.agent = nil
	m.mu.Unlock()
	return errors.Join(errs...)
}

func (m *Manager) rebuildLocked() error {
	cfg := agent.Config{
		Name:             m.cfg.Agent.Name,
		Model:            m.cfg.Model,
		MaxTurns:         m.cfg.Agent.MaxTurns,
		Stream:           m.cfg.Agent.Stream,
		MaxHistoryTokens: m.cfg.Agent.MaxHistoryTokens,
		Generate:         m.cfg.Agent.Generate,
	}
	if m.toolset != nil {
		cfg.Toolsets = []tool.Toolset{m.toolset}
		cfg.Instruction = m.cfg.Agent.InstructionWithTools
	} else {
		cfg.Instruction = m.cfg.Agent.InstructionWithoutTools
	}

	a, err := agent.New(cfg)
	if err != nil {
		return err
	}
	m.agent = a
	return nil
}

// conversation returns the named conversation, restoring it from the
// history store on first use.
func (m *Manager) conversation(ctx context.Context, id string) (*agent.Conversation, error) {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	if conv, ok := m.conversations[id]; ok {
		return conv, nil
	}

	conv := agent.NewConversation()
	entries, err := m.history.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(entries) > 0 {
		messages, turns := toMessages(entries)
		conv.Restore(messages, turns)
		slog.Debug("Restored conversation", "conversation", id, "turns", turns)
	}
	m.conversations[id] = conv
	return conv, nil
}

func resolveServer(cfg mcptoolset.Config) error {
	switch {
	case cfg.Transport == mcptoolset.TransportStreamableHTTP, cfg.Transport == "" && cfg.Command == "":
		if cfg.URL == "" {
			return fmt.Errorf("%w: no url configured", ErrServerNotFound)
		}
	default:
		if cfg.Command == "" {
			return fmt.Errorf("%w: no command configured", ErrServerNotFound)
		}
		if _, err := exec.LookPath(cfg.Command); err != nil {
			return fmt.Errorf("%w: %s", ErrServerNotFound, cfg.Command)
		}
	}
	return nil
}

func toolNames(tools []tool.Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}
