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

// Package config loads homelink configuration.
//
// Configuration is read from a YAML (or JSON) file, environment references
// are expanded, the result is decoded into Config, defaults are applied and
// the whole tree is validated. Without a file, Zero builds a configuration
// from the Azure OpenAI (or OpenAI) environment variables alone.
//
// Example:
//
//	llm:
//	  provider: azure
//	  endpoint: ${AZURE_OPENAI_API_BASE}
//	  api_version: ${AZURE_OPENAI_API_VERSION}
//	  model: ${AZURE_OPENAI_API_DEPLOY}
//	mcp:
//	  command: homelink
//	  args: [mcp-server]
//	history:
//	  driver: sqlite
//	  database: ./homelink.db
package config

import (
	"fmt"

	"github.com/kadirpekel/homelink/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	// LLM configures the chat-completions backend.
	LLM LLMConfig `yaml:"llm" jsonschema:"title=LLM,description=Chat model backend"`

	// Agent configures the assistant built on top of the model.
	Agent AgentConfig `yaml:"agent,omitempty" jsonschema:"title=Agent"`

	// MCP describes how to reach the home automation tool server.
	MCP MCPConfig `yaml:"mcp,omitempty" jsonschema:"title=MCP Server"`

	// History selects where conversation turns are stored.
	History HistoryConfig `yaml:"history,omitempty" jsonschema:"title=History Store"`

	// Server configures the A2A endpoint used by `homelink serve`.
	Server ServerConfig `yaml:"server,omitempty" jsonschema:"title=A2A Server"`

	Observability observability.Config `yaml:"observability,omitempty" jsonschema:"title=Observability"`
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Agent.SetDefaults()
	c.MCP.SetDefaults()
	c.History.SetDefaults()
	c.Server.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section, prefixing errors with the section name.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.MCP.Validate(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Server.PersistTasks && c.History.Driver == DriverMemory {
		return fmt.Errorf("server: persist_tasks requires an SQL history driver")
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolValue dereferences b, falling back to def when nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
