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
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/homelink/pkg/model"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

const createHistoryTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_history (
    conversation_id VARCHAR(255) NOT NULL,
    seq INTEGER NOT NULL,
    role VARCHAR(32) NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (conversation_id, seq)
)`

// SQLStore persists history through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
	ownsDB  bool
}

// DriverName maps a dialect to its registered database/sql driver.
func DriverName(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite3", nil
	case DialectPostgres:
		return "postgres", nil
	case DialectMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}
}

// OpenSQLStore opens a connection for dialect and dsn and prepares the schema.
func OpenSQLStore(ctx context.Context, dialect, dsn string, maxConns int) (*SQLStore, error) {
	driverName, err := DriverName(dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids "database is locked".
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == DialectSQLite {
		if _, err := db.ExecContext(pingCtx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("Failed to set busy timeout", "error", err)
		}
	}

	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewSQLStore wraps an open database. The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := DriverName(dialect); err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, createHistoryTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) rebind(query string) string {
	return Rebind(s.dialect, query)
}

// Rebind rewrites ? placeholders to $n for postgres.
func Rebind(dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect.
func (s *SQLStore) Dialect() string {
	return s.dialect
}

func (s *SQLStore) Append(ctx context.Context, conversationID string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(seq), 0) FROM conversation_history WHERE conversation_id = ?`),
		conversationID,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	insert := s.rebind(`INSERT INTO conversation_history (conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	for i, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := tx.ExecContext(ctx, insert, conversationID, last+i+1, string(e.Role), e.Content, created.UTC()); err != nil {
			return fmt.Errorf("failed to insert history entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, conversationID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT role, content, created_at FROM conversation_history WHERE conversation_id = ? ORDER BY seq`),
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			role string
			e    Entry
		)
		if err := rows.Scan(&role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Role = model.Role(role)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLStore) Clear(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM conversation_history WHERE conversation_id = ?`),
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the database when the store opened it.
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

var _ HistoryStore = (*SQLStore)(nil)
