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

package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kadirpekel/homelink/pkg/model"
)

// Entry is one user or assistant message of a stored conversation.
type Entry struct {
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryStore persists the visible turns of conversations.
type HistoryStore interface {
	// Append adds entries to the end of a conversation.
	Append(ctx context.Context, conversationID string, entries ...Entry) error

	// List returns the entries of a conversation in insertion order.
	List(ctx context.Context, conversationID string) ([]Entry, error)

	// Clear removes every entry of a conversation.
	Clear(ctx context.Context, conversationID string) error

	Close() error
}

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]Entry
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string][]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, conversationID string, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], entries...)
	return nil
}

func (s *MemoryStore) List(_ context.Context, conversationID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conversations[conversationID]), nil
}

func (s *MemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// toMessages rebuilds an input list from stored entries and counts the user
// turns in it.
func toMessages(entries []Entry) ([]model.Message, int) {
	messages := make([]model.Message, 0, len(entries))
	turns := 0
	for _, e := range entries {
		messages = append(messages, model.Message{Role: e.Role, Content: e.Content})
		if e.Role == model.RoleUser {
			turns++
		}
	}
	return messages, turns
}

var _ HistoryStore = (*MemoryStore)(nil)
