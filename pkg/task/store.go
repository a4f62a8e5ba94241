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

// Package task persists A2A tasks in the conversation history database so
// that task state survives a server restart.
package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/kadirpekel/homelink/pkg/session"
)

const createTaskTableSQL = `
CREATE TABLE IF NOT EXISTS a2a_tasks (
    id VARCHAR(255) PRIMARY KEY,
    context_id VARCHAR(255) NOT NULL,
    status_json TEXT NOT NULL,
    history_json TEXT NOT NULL,
    artifacts_json TEXT NOT NULL,
    metadata_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createTaskContextIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_a2a_tasks_context_id ON a2a_tasks(context_id)`

// upsert statements keep created_at from the first save.
var upsertSQL = map[string]string{
	session.DialectSQLite: `
INSERT INTO a2a_tasks (id, context_id, status_json, history_json, artifacts_json, metadata_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    context_id = excluded.context_id,
    status_json = excluded.status_json,
    history_json = excluded.history_json,
    artifacts_json = excluded.artifacts_json,
    metadata_json = excluded.metadata_json,
    updated_at = excluded.updated_at`,
	session.DialectPostgres: `
INSERT INTO a2a_tasks (id, context_id, status_json, history_json, artifacts_json, metadata_json, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    context_id = EXCLUDED.context_id,
    status_json = EXCLUDED.status_json,
    history_json = EXCLUDED.history_json,
    artifacts_json = EXCLUDED.artifacts_json,
    metadata_json = EXCLUDED.metadata_json,
    updated_at = EXCLUDED.updated_at`,
	session.DialectMySQL: `
INSERT INTO a2a_tasks (id, context_id, status_json, history_json, artifacts_json, metadata_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    context_id = VALUES(context_id),
    status_json = VALUES(status_json),
    history_json = VALUES(history_json),
    artifacts_json = VALUES(artifacts_json),
    metadata_json = VALUES(metadata_json),
    updated_at = VALUES(updated_at)`,
}

// SQLStore implements a2asrv.TaskStore on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// NewSQLStore prepares the task table on db. The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, ok := upsertSQL[dialect]; !ok {
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	// Separate statements for SQLite.
	for _, stmt := range []string{createTaskTableSQL, createTaskContextIndexSQL} {
		if dialect == session.DialectMySQL && stmt == createTaskContextIndexSQL {
			// MySQL has no CREATE INDEX IF NOT EXISTS.
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create task schema: %w", err)
		}
	}

	return &SQLStore{db: db, dialect: dialect, now: time.Now}, nil
}

// FromHistory reuses the connection of an SQL history store.
func FromHistory(ctx context.Context, store session.HistoryStore) (*SQLStore, error) {
	sqlStore, ok := store.(*session.SQLStore)
	if !ok {
		return nil, fmt.Errorf("task persistence requires an SQL history store, got %T", store)
	}
	return NewSQLStore(ctx, sqlStore.DB(), sqlStore.Dialect())
}

// Save implements a2asrv.TaskStore.
func (s *SQLStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}

	status, err := json.Marshal(task.Status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	history, err := marshalOr(task.History, len(task.History), "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	artifacts, err := marshalOr(task.Artifacts, len(task.Artifacts), "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts: %w", err)
	}
	metadata, err := marshalOr(task.Metadata, len(task.Metadata), "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, upsertSQL[s.dialect],
		string(task.ID), task.ContextID, string(status), history, artifacts, metadata, now, now)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Get implements a2asrv.TaskStore.
func (s *SQLStore) Get(ctx context.Context, taskID a2a.TaskID) (*a2a.Task, error) {
	query := session.Rebind(s.dialect, `
SELECT context_id, status_json, history_json, artifacts_json, metadata_json
FROM a2a_tasks WHERE id = ?`)

	var contextID, status, history, artifacts, metadata string
	err := s.db.QueryRowContext(ctx, query, string(taskID)).Scan(&contextID, &status, &history, &artifacts, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	task := &a2a.Task{ID: taskID, ContextID: contextID}
	if err := json.Unmarshal([]byte(status), &task.Status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &task.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &task.Artifacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &task.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return task, nil
}

// marshalOr encodes v, or returns empty when v has no elements.
func marshalOr(v any, n int, empty string) (string, error) {
	if n == 0 {
		return empty, nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

var _ a2asrv.TaskStore = (*SQLStore)(nil)
