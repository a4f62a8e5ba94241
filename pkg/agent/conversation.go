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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/observability"
)

// Conversation carries the input list from one Run to the next and groups
// the runs of one conversation under a shared ID.
type Conversation struct {
	mu       sync.Mutex
	previous *Result
	groupID  string
	turns    int
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{groupID: uuid.NewString()}
}

// Send appends text as a user message to the previous input list and runs
// a over it. A failed run leaves the conversation unchanged.
func (c *Conversation) Send(ctx context.Context, a *Agent, text string, opts ...RunOption) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.previous == nil {
		c.groupID = uuid.NewString()
	}

	ctx, span := observability.GetTracer(tracerName).Start(ctx, observability.SpanConversation,
		trace.WithAttributes(
			attribute.String(observability.AttrGroupID, c.groupID),
			attribute.String(observability.AttrAgentName, a.Name()),
		))
	defer span.End()

	input := append(c.previous.ToInputList(), model.UserMessage(text))

	start := time.Now()
	result, err := a.Run(ctx, input, opts...)
	observability.GetGlobalMetrics().RecordConversationTurn(ctx, a.Name(), time.Since(start), err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	c.previous = result
	c.turns++
	return result, nil
}

// Reset clears the conversation and starts a new group.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.previous = nil
	c.turns = 0
	c.groupID = uuid.NewString()
}

// Restore replaces the conversation with a previously stored input list.
func (c *Conversation) Restore(messages []model.Message, turns int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(messages) == 0 {
		c.previous = nil
		c.turns = 0
		return
	}
	c.previous = &Result{Messages: messages}
	c.turns = turns
}

func (c *Conversation) GroupID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groupID
}

// Turns returns the number of successful Sends since the last Reset.
func (c *Conversation) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns
}

// Messages returns a copy of the current input list.
func (c *Conversation) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous.ToInputList()
}
