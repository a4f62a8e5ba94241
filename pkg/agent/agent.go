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

// Package agent runs a model against a set of toolsets until the model
// produces a final answer.
//
// One Run is one user turn: the model is called with the conversation and
// the tool definitions, requested tool calls are executed in order and their
// results appended, and the loop repeats until a model turn carries no tool
// calls. Conversation keeps the input list across turns.
package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/tool"
	"github.com/kadirpekel/homelink/pkg/utils"
)

const (
	// DefaultName is the agent name used when none is configured.
	DefaultName = "Home Assistant"

	// DefaultMaxTurns bounds model calls per Run.
	DefaultMaxTurns = 10

	// InstructionWithTools is used when at least one toolset is attached.
	InstructionWithTools = "Use the tools to answer the questions. Maintain context from previous messages in the conversation. You now have access to home automation tools - help users control their smart home devices."

	// InstructionWithoutTools is used when no toolset is attached.
	InstructionWithoutTools = "You are a helpful AI agent. You currently don't have access to any tools or external systems. Explain to users that they need to start the MCP server to access home automation capabilities."
)

// ErrMaxTurnsExceeded is returned when the model keeps requesting tools
// beyond MaxTurns.
var ErrMaxTurnsExceeded = errors.New("max turns exceeded")

// DefaultInstruction returns the instruction matching tool availability.
func DefaultInstruction(hasTools bool) string {
	if hasTools {
		return InstructionWithTools
	}
	return InstructionWithoutTools
}

// TokenCounter counts the prompt cost of a message list.
type TokenCounter interface {
	CountMessages(messages []utils.Message) int
}

// Config configures an Agent.
type Config struct {
	// Name identifies the agent in traces, metrics and the agent card.
	Name string

	// Instruction is the system instruction. Defaults to DefaultInstruction.
	Instruction string

	// Model is required.
	Model model.LLM

	// Toolsets provide the callable tools. Tools are listed on every Run.
	Toolsets []tool.Toolset

	// MaxTurns bounds model calls per Run. Defaults to DefaultMaxTurns.
	MaxTurns int

	// Stream requests streaming responses from the model.
	Stream bool

	// Generate overrides model generation settings.
	Generate *model.GenerateConfig

	// MaxHistoryTokens drops the oldest messages before each model call
	// once the conversation exceeds this budget. Zero disables trimming.
	MaxHistoryTokens int

	// TokenCounter counts history tokens. Defaults to a tiktoken counter
	// for the model name.
	TokenCounter TokenCounter
}

// Agent is an LLM with toolsets and an instruction.
type Agent struct {
	name        string
	instruction string
	llm         model.LLM
	toolsets    []tool.Toolset
	maxTurns    int
	stream      bool
	generate    *model.GenerateConfig

	maxHistoryTokens int
	counter          TokenCounter
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxTurns < 0 {
		return nil, fmt.Errorf("max turns must be non-negative, got %d", cfg.MaxTurns)
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Instruction == "" {
		cfg.Instruction = DefaultInstruction(len(cfg.Toolsets) > 0)
	}

	a := &Agent{
		name:             cfg.Name,
		instruction:      cfg.Instruction,
		llm:              cfg.Model,
		toolsets:         cfg.Toolsets,
		maxTurns:         cfg.MaxTurns,
		stream:           cfg.Stream,
		generate:         cfg.Generate,
		maxHistoryTokens: cfg.MaxHistoryTokens,
		counter:          cfg.TokenCounter,
	}

	if a.maxHistoryTokens > 0 && a.counter == nil {
		counter, err := utils.NewTokenCounter(cfg.Model.Name())
		if err != nil {
			slog.Warn("History budget disabled, token counter unavailable",
				"model", cfg.Model.Name(), "error", err)
			a.maxHistoryTokens = 0
		} else {
			a.counter = counter
		}
	}

	return a, nil
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) Instruction() string {
	return a.instruction
}

func (a *Agent) Model() model.LLM {
	return a.llm
}

// HasTools reports whether any toolset is attached.
func (a *Agent) HasTools() bool {
	return len(a.toolsets) > 0
}
