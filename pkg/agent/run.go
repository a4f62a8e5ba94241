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

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/observability"
	"github.com/kadirpekel/homelink/pkg/tool"
)

const tracerName = "homelink/agent"

// Result is the outcome of one Run.
type Result struct {
	// FinalOutput is the text of the last model turn.
	FinalOutput string

	// Messages is the full input list, including the new turn, tool calls
	// and tool results.
	Messages []model.Message

	// Usage accumulated over all model calls of the run.
	Usage model.Usage

	// Turns is the number of model calls made.
	Turns int
}

// ToInputList returns a copy of the messages, ready to be extended with the
// next user message.
func (r *Result) ToInputList() []model.Message {
	if r == nil {
		return nil
	}
	return slices.Clone(r.Messages)
}

type runOptions struct {
	onPartial func(text string)
}

// RunOption customises a single Run.
type RunOption func(*runOptions)

// WithPartialHandler receives text deltas while the model streams.
func WithPartialHandler(fn func(text string)) RunOption {
	return func(o *runOptions) {
		o.onPartial = fn
	}
}

// Run executes the agent loop over input until the model answers without
// tool calls.
func (a *Agent) Run(ctx context.Context, input []model.Message, opts ...RunOption) (*Result, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	tools, index, err := tool.Resolve(ctx, a.toolsets)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defs := make([]tool.Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, tool.ToDefinition(t))
	}

	var onPartial func(*model.Response)
	if ro.onPartial != nil {
		onPartial = func(r *model.Response) { ro.onPartial(r.Content) }
	}

	messages := slices.Clone(input)
	result := &Result{}

	for turn := 0; turn < a.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := &model.Request{
			SystemInstruction: a.instruction,
			Messages:          a.fitHistory(messages),
			Tools:             defs,
			Config:            a.generate.Clone(),
		}

		resp, err := a.callModel(ctx, req, onPartial)
		if err != nil {
			return nil, err
		}
		result.Turns++
		result.Usage.Add(resp.Usage)

		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = "call_" + uuid.NewString()
			}
		}
		messages = append(messages, resp.ToMessage())

		if !resp.HasToolCalls() {
			result.FinalOutput = resp.Content
			result.Messages = messages
			return result, nil
		}

		for _, call := range resp.ToolCalls {
			messages = append(messages, a.executeTool(ctx, index, call))
		}
	}

	return nil, fmt.Errorf("%w (%d)", ErrMaxTurnsExceeded, a.maxTurns)
}

func (a *Agent) callModel(ctx context.Context, req *model.Request, onPartial func(*model.Response)) (*model.Response, error) {
	ctx, span := observability.GetTracer(tracerName).Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentName, a.name),
			attribute.String(observability.AttrLLMModel, a.llm.Name()),
		))
	defer span.End()

	resp, err := model.Collect(ctx, a.llm, req, a.stream, onPartial)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int(observability.AttrLLMTokensInput, resp.Usage.PromptTokens),
			attribute.Int(observability.AttrLLMTokensOutput, resp.Usage.CompletionTokens),
		)
	}
	return resp, nil
}

// executeTool runs one call and returns the tool message answering it.
// Failures are reported to the model as the tool result.
func (a *Agent) executeTool(ctx context.Context, index map[string]tool.Tool, call tool.ToolCall) model.Message {
	ctx, span := observability.GetTracer(tracerName).Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, call.Name)))
	defer span.End()

	start := time.Now()
	output, err := a.callTool(ctx, index, call)
	observability.GetGlobalMetrics().RecordToolExecution(ctx, call.Name, time.Since(start), err)

	if err != nil {
		observability.RecordError(span, err)
		slog.Warn("Tool call failed", "tool", call.Name, "error", err)
		output = map[string]any{"error": err.Error()}
	} else {
		slog.Debug("Tool call completed", "tool", call.Name, "duration", time.Since(start))
	}

	return model.ToolMessage(call.ID, formatToolOutput(output))
}

func (a *Agent) callTool(ctx context.Context, index map[string]tool.Tool, call tool.ToolCall) (map[string]any, error) {
	t, ok := index[call.Name]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not found", call.Name)
	}
	callable, ok := t.(tool.CallableTool)
	if !ok {
		return nil, fmt.Errorf("tool '%s' is not callable", call.Name)
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return callable.Call(ctx, args)
}

// formatToolOutput renders a lone "result" string as-is and anything else
// as JSON.
func formatToolOutput(output map[string]any) string {
	if len(output) == 1 {
		if s, ok := output["result"].(string); ok {
			return s
		}
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(data)
}
