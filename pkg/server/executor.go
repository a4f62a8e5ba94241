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

// Package server exposes a session manager over the A2A protocol.
//
// The Executor bridges a2asrv requests into session conversations, keyed by
// the A2A context ID. HTTPServer serves the agent card, the JSON-RPC
// endpoint, health and metrics on a chi router.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/kadirpekel/homelink/pkg/session"
)

// Executor implements a2asrv.AgentExecutor on top of a session manager.
//
// Event translation:
//   - New task: TaskStateSubmitted
//   - Before the agent runs: TaskStateWorking
//   - Final output: one artifact with a text part
//   - Success: TaskStateCompleted, final
//   - Agent error: TaskStateFailed with the error text, final
type Executor struct {
	sessions *session.Manager
}

// NewExecutor creates an executor forwarding into sessions.
func NewExecutor(sessions *session.Manager) *Executor {
	return &Executor{sessions: sessions}
}

// Execute implements a2asrv.AgentExecutor.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	msg := reqCtx.Message
	if msg == nil {
		return fmt.Errorf("message not provided")
	}

	if reqCtx.StoredTask == nil {
		event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)
		if err := queue.Write(ctx, event); err != nil {
			return fmt.Errorf("failed to write submitted event: %w", err)
		}
	}

	text := textOf(msg.Parts)
	if text == "" {
		return writeFailed(ctx, reqCtx, queue, "message contains no text")
	}

	working := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)
	if err := queue.Write(ctx, working); err != nil {
		return err
	}

	slog.Debug("A2A request", "context", reqCtx.ContextID, "task", string(reqCtx.TaskID))

	result, err := e.sessions.SendTo(ctx, reqCtx.ContextID, text)
	if err != nil {
		slog.Error("Agent run failed", "context", reqCtx.ContextID, "error", err)
		return writeFailed(ctx, reqCtx, queue, err.Error())
	}

	artifact := a2a.NewArtifactEvent(reqCtx, a2a.TextPart{Text: result.FinalOutput})
	artifact.LastChunk = true
	if err := queue.Write(ctx, artifact); err != nil {
		return err
	}

	completed := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCompleted, nil)
	completed.Final = true
	return queue.Write(ctx, completed)
}

// Cancel implements a2asrv.AgentExecutor.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

func writeFailed(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue, reason string) error {
	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: reason})
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateFailed, msg)
	event.Final = true
	return queue.Write(ctx, event)
}

// textOf joins the text parts of a message.
func textOf(parts []a2a.Part) string {
	var texts []string
	for _, p := range parts {
		if tp, ok := p.(a2a.TextPart); ok && strings.TrimSpace(tp.Text) != "" {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)
