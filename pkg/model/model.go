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

// Package model defines the LLM interface used by agents.
//
//   - Unified GenerateContent method with stream boolean parameter
//   - Returns iter.Seq2[*Response, error] for both streaming and non-streaming
//   - Streaming uses the Partial flag to distinguish chunks from the final response
//
// Conversations are expressed as a flat list of Messages in chat-completions
// shape: system, user, assistant (optionally carrying tool calls) and tool
// results keyed by the originating call ID.
package model

import (
	"context"
	"errors"
	"iter"

	"github.com/kadirpekel/homelink/pkg/tool"
)

// LLM is the interface for language models.
type LLM interface {
	// Name returns the model identifier (deployment name for Azure).
	Name() string

	// Provider returns the provider type.
	Provider() Provider

	// GenerateContent produces responses for the given request.
	//
	// When stream=false:
	//   - Yields exactly one Response with complete content
	//
	// When stream=true:
	//   - Yields partial Responses (Partial=true) carrying text deltas
	//   - Finally yields the aggregated Response (Partial=false) with the
	//     full text, tool calls and usage
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	// Close releases any resources held by the LLM.
	Close() error
}

// Provider identifies the LLM provider.
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderAzureOpenAI Provider = "azure"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []tool.ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}

// Request contains the input for an LLM call.
type Request struct {
	// SystemInstruction is sent ahead of Messages.
	SystemInstruction string

	// Messages is the conversation history.
	Messages []Message

	// Tools available for the model to call.
	Tools []tool.Definition

	// Config contains generation configuration.
	Config *GenerateConfig
}

// GenerateConfig contains configuration for generation.
type GenerateConfig struct {
	// Temperature controls randomness (0-2).
	Temperature *float64

	// MaxTokens limits the response length.
	MaxTokens *int
}

// Clone creates a deep copy of the GenerateConfig.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}

	clone := *c
	if c.Temperature != nil {
		temp := *c.Temperature
		clone.Temperature = &temp
	}
	if c.MaxTokens != nil {
		maxTok := *c.MaxTokens
		clone.MaxTokens = &maxTok
	}
	return &clone
}

// Response contains the result of an LLM call.
type Response struct {
	// Content is the generated text (a delta when Partial is true).
	Content string

	// Partial indicates whether this is a streaming chunk (true) or final response (false).
	Partial bool

	// ToolCalls requested by the model.
	ToolCalls []tool.ToolCall

	// Usage statistics, set on the final response.
	Usage *Usage

	// FinishReason indicates why generation stopped.
	FinishReason FinishReason
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Requests         int `json:"requests"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if u == nil || other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Requests += other.Requests
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
)

// HasToolCalls returns whether the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ToMessage converts a final Response to an assistant Message.
func (r *Response) ToMessage() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}

// ErrNoResponse is returned when a model yields no final response.
var ErrNoResponse = errors.New("model returned no response")

// Collect drains GenerateContent and returns the final response. Partial
// responses are passed to onPartial when it is non-nil.
func Collect(ctx context.Context, llm LLM, req *Request, stream bool, onPartial func(*Response)) (*Response, error) {
	var final *Response
	for resp, err := range llm.GenerateContent(ctx, req, stream) {
		if err != nil {
			return nil, err
		}
		if resp == nil {
			continue
		}
		if resp.Partial {
			if onPartial != nil {
				onPartial(resp)
			}
			continue
		}
		final = resp
	}
	if final == nil {
		return nil, ErrNoResponse
	}
	return final, nil
}
