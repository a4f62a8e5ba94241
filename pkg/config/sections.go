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

package config

import (
	"fmt"
	"time"

	"github.com/kadirpekel/homelink/pkg/agent"
	"github.com/kadirpekel/homelink/pkg/server"
	"github.com/kadirpekel/homelink/pkg/session"
	"github.com/kadirpekel/homelink/pkg/tool/mcptoolset"
)

// AgentConfig configures the assistant.
type AgentConfig struct {
	Name string `yaml:"name,omitempty" jsonschema:"title=Name,default=Home Assistant"`

	// InstructionWithTools replaces the system prompt used while the MCP
	// server is running.
	InstructionWithTools string `yaml:"instruction_with_tools,omitempty" jsonschema:"title=Instruction (tools)"`

	// InstructionWithoutTools replaces the system prompt used while no
	// tools are available.
	InstructionWithoutTools string `yaml:"instruction_without_tools,omitempty" jsonschema:"title=Instruction (no tools)"`

	MaxTurns int `yaml:"max_turns,omitempty" jsonschema:"title=Max Turns,minimum=1,default=10"`

	// Stream requests token streaming from the model. Default: true.
	Stream *bool `yaml:"stream,omitempty" jsonschema:"title=Stream,default=true"`

	// MaxHistoryTokens trims the oldest turns once the conversation grows
	// past this many tokens. Zero keeps everything.
	MaxHistoryTokens int `yaml:"max_history_tokens,omitempty" jsonschema:"title=Max History Tokens,minimum=0"`
}

// SetDefaults fills zero values.
func (c *AgentConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = agent.DefaultName
	}
	if c.InstructionWithTools == "" {
		c.InstructionWithTools = agent.InstructionWithTools
	}
	if c.InstructionWithoutTools == "" {
		c.InstructionWithoutTools = agent.InstructionWithoutTools
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = agent.DefaultMaxTurns
	}
	if c.Stream == nil {
		c.Stream = BoolPtr(true)
	}
}

// Validate checks numeric bounds.
func (c *AgentConfig) Validate() error {
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns must be positive, got %d", c.MaxTurns)
	}
	if c.MaxHistoryTokens < 0 {
		return fmt.Errorf("max_history_tokens must be non-negative, got %d", c.MaxHistoryTokens)
	}
	return nil
}

// SessionConfig converts the section for session.Manager.
func (c *AgentConfig) SessionConfig() session.AgentConfig {
	return session.AgentConfig{
		Name:                    c.Name,
		InstructionWithTools:    c.InstructionWithTools,
		InstructionWithoutTools: c.InstructionWithoutTools,
		MaxTurns:                c.MaxTurns,
		Stream:                  BoolValue(c.Stream, true),
		MaxHistoryTokens:        c.MaxHistoryTokens,
	}
}

// MCPConfig describes the MCP server the chat client launches or connects to.
// With neither Command nor URL set, the running homelink binary is launched
// with the mcp-server subcommand.
type MCPConfig struct {
	Transport string            `yaml:"transport,omitempty" jsonschema:"title=Transport,enum=stdio,enum=streamable-http"`
	Command   string            `yaml:"command,omitempty" jsonschema:"title=Command,description=Server executable for stdio"`
	Args      []string          `yaml:"args,omitempty" jsonschema:"title=Arguments"`
	Env       map[string]string `yaml:"env,omitempty" jsonschema:"title=Environment"`
	URL       string            `yaml:"url,omitempty" jsonschema:"title=URL,description=Streamable HTTP endpoint"`

	// Filter restricts the tools handed to the agent.
	Filter []string `yaml:"filter,omitempty" jsonschema:"title=Tool Filter"`

	// CacheTools keeps the first tool listing. Default: true.
	CacheTools *bool `yaml:"cache_tools,omitempty" jsonschema:"title=Cache Tools,default=true"`

	Timeout time.Duration `yaml:"timeout,omitempty" jsonschema:"title=Timeout"`

	// AutoStart starts the server as soon as the client is initialised.
	AutoStart bool `yaml:"auto_start,omitempty" jsonschema:"title=Auto Start"`
}

// SetDefaults fills zero values.
func (c *MCPConfig) SetDefaults() {
	if c.Transport == "" {
		if c.URL != "" && c.Command == "" {
			c.Transport = mcptoolset.TransportStreamableHTTP
		} else {
			c.Transport = mcptoolset.TransportStdio
		}
	}
	if c.CacheTools == nil {
		c.CacheTools = BoolPtr(true)
	}
	if c.Timeout == 0 {
		c.Timeout = mcptoolset.DefaultTimeout
	}
}

// Validate checks the transport settings.
func (c *MCPConfig) Validate() error {
	switch c.Transport {
	case mcptoolset.TransportStdio:
	case mcptoolset.TransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("url is required for %s transport", c.Transport)
		}
	default:
		return fmt.Errorf("invalid transport %q (valid: stdio, streamable-http)", c.Transport)
	}
	return nil
}

// ToolsetConfig converts the section for mcptoolset. self replaces an empty
// stdio command, typically the path of the running executable.
func (c *MCPConfig) ToolsetConfig(self string) mcptoolset.Config {
	cfg := mcptoolset.Config{
		Name:       "home",
		Transport:  c.Transport,
		Command:    c.Command,
		Args:       c.Args,
		Env:        c.Env,
		URL:        c.URL,
		Filter:     c.Filter,
		CacheTools: BoolValue(c.CacheTools, true),
		Timeout:    c.Timeout,
	}
	if cfg.Transport == mcptoolset.TransportStdio && cfg.Command == "" {
		cfg.Command = self
		if len(cfg.Args) == 0 {
			cfg.Args = []string{"mcp-server"}
		}
	}
	return cfg
}

// ServerConfig configures the A2A server.
type ServerConfig struct {
	Host      string `yaml:"host,omitempty" jsonschema:"title=Host,default=0.0.0.0"`
	Port      int    `yaml:"port,omitempty" jsonschema:"title=Port,minimum=1,maximum=65535,default=8080"`
	PublicURL string `yaml:"public_url,omitempty" jsonschema:"title=Public URL,description=URL advertised in the agent card"`

	Description string `yaml:"description,omitempty" jsonschema:"title=Description"`

	// PersistTasks stores A2A tasks in the history database. Requires an
	// SQL history driver.
	PersistTasks bool `yaml:"persist_tasks,omitempty" jsonschema:"title=Persist Tasks"`
}

// SetDefaults fills zero values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = server.DefaultHost
	}
	if c.Port == 0 {
		c.Port = server.DefaultPort
	}
}

// Validate checks the port range.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// ServerConfig converts the section for server.HTTPServer, naming the agent
// card after agentName.
func (c *ServerConfig) ServerConfig(agentName, version string) server.Config {
	cfg := server.Config{
		Host:        c.Host,
		Port:        c.Port,
		PublicURL:   c.PublicURL,
		Name:        agentName,
		Description: c.Description,
		Version:     version,
	}
	cfg.SetDefaults()
	return cfg
}
