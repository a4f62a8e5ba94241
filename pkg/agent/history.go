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
	"encoding/json"
	"log/slog"

	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/utils"
)

// fitHistory returns the newest messages that fit within the history budget.
// An assistant message and the tool results answering it are kept or
// dropped together, and the newest group is always kept.
func (a *Agent) fitHistory(messages []model.Message) []model.Message {
	if a.maxHistoryTokens <= 0 || a.counter == nil || len(messages) == 0 {
		return messages
	}

	groups := groupMessages(messages)
	start := groups[len(groups)-1]
	used := a.counter.CountMessages(toCountable(messages[start:]))

	for g := len(groups) - 2; g >= 0; g-- {
		from, to := groups[g], groups[g+1]
		cost := a.counter.CountMessages(toCountable(messages[from:to]))
		if used+cost > a.maxHistoryTokens {
			break
		}
		used += cost
		start = from
	}

	if start > 0 {
		slog.Debug("Trimmed conversation history",
			"dropped", start, "kept", len(messages)-start, "budget", a.maxHistoryTokens)
	}
	return messages[start:]
}

// groupMessages returns the start index of every group. Tool messages join
// the group of the message before them.
func groupMessages(messages []model.Message) []int {
	var starts []int
	for i, msg := range messages {
		if msg.Role == model.RoleTool && len(starts) > 0 {
			continue
		}
		starts = append(starts, i)
	}
	return starts
}

func toCountable(messages []model.Message) []utils.Message {
	out := make([]utils.Message, len(messages))
	for i, msg := range messages {
		content := msg.Content
		if len(msg.ToolCalls) > 0 {
			if data, err := json.Marshal(msg.ToolCalls); err == nil {
				content += string(data)
			}
		}
		out[i] = utils.Message{Role: string(msg.Role), Content: content}
	}
	return out
}
