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

package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kadirpekel/homelink/pkg/session"
)

// DriverMemory keeps history in process memory.
const DriverMemory = "memory"

// HistoryConfig selects the conversation history store.
type HistoryConfig struct {
	// Driver is memory (default), sqlite, postgres or mysql.
	Driver string `yaml:"driver,omitempty" jsonschema:"title=Driver,enum=memory,enum=sqlite,enum=sqlite3,enum=postgres,enum=mysql,default=memory"`

	// DSN overrides the connection string built from the fields below.
	DSN string `yaml:"dsn,omitempty" jsonschema:"title=DSN,description=Full connection string"`

	Host string `yaml:"host,omitempty" jsonschema:"title=Host"`
	Port int    `yaml:"port,omitempty" jsonschema:"title=Port"`

	// Database is the database name, or the file path for SQLite.
	Database string `yaml:"database,omitempty" jsonschema:"title=Database"`

	Username string `yaml:"username,omitempty" jsonschema:"title=Username"`
	Password string `yaml:"password,omitempty" jsonschema:"title=Password"`
	SSLMode  string `yaml:"ssl_mode,omitempty" jsonschema:"title=SSL Mode"`

	MaxConns int `yaml:"max_conns,omitempty" jsonschema:"title=Max Connections,minimum=1,default=10"`
}

// SetDefaults fills zero values.
func (c *HistoryConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Driver == "sqlite3" {
		c.Driver = session.DialectSQLite
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.Port == 0 {
		switch c.Driver {
		case session.DialectPostgres:
			c.Port = 5432
		case session.DialectMySQL:
			c.Port = 3306
		}
	}
	if c.Driver == session.DialectPostgres && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the driver and its required fields.
func (c *HistoryConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case session.DialectSQLite, session.DialectPostgres, session.DialectMySQL:
	default:
		return fmt.Errorf("invalid driver %q (valid: memory, sqlite, postgres, mysql)", c.Driver)
	}

	if c.DSN != "" {
		return nil
	}
	if c.Database == "" {
		return fmt.Errorf("database is required for %s", c.Driver)
	}
	if c.Driver != session.DialectSQLite && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be non-negative")
	}
	return nil
}

// ConnString returns the DSN for the configured driver.
func (c *HistoryConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case session.DialectPostgres:
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s", c.Host, c.Port, c.Database)
		if c.Username != "" {
			dsn += " user=" + c.Username
		}
		if c.Password != "" {
			dsn += " password=" + c.Password
		}
		if c.SSLMode != "" {
			dsn += " sslmode=" + c.SSLMode
		}
		return dsn
	case session.DialectMySQL:
		// created_at is scanned into time.Time.
		params := url.Values{"parseTime": {"true"}}
		if c.Username != "" {
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.Username, c.Password, c.Host, c.Port, c.Database, params.Encode())
		}
		return fmt.Sprintf("tcp(%s:%d)/%s?%s", c.Host, c.Port, c.Database, params.Encode())
	case session.DialectSQLite:
		return c.Database
	default:
		return ""
	}
}

// Open creates the configured history store.
func (c *HistoryConfig) Open(ctx context.Context) (session.HistoryStore, error) {
	if c.Driver == DriverMemory || c.Driver == "" {
		return session.NewMemoryStore(), nil
	}
	store, err := session.OpenSQLStore(ctx, c.Driver, c.ConnString(), c.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s history store: %w", c.Driver, err)
	}
	return store, nil
}
