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

package config

import "fmt"

// StorageBackend identifies a task storage backend.
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendSQL    StorageBackend = "sql"
)

// StorageConfig configures where tasks are persisted.
//
//	storage:
//	  backend: sql
//	  dialect: sqlite
//	  dsn: .paygate/tasks.db
type StorageConfig struct {
	// Backend is memory or sql.
	// Default: memory
	Backend StorageBackend `yaml:"backend,omitempty"`

	// Dialect is sqlite, postgres or mysql.
	// Default: sqlite
	Dialect string `yaml:"dialect,omitempty"`

	// DSN is the driver data source name.
	// Default: .paygate/tasks.db for sqlite
	DSN string `yaml:"dsn,omitempty"`
}

// SetDefaults applies default values.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageBackendMemory
	}
	if c.Backend != StorageBackendSQL {
		return
	}
	if c.Dialect == "" {
		c.Dialect = "sqlite"
	}
	if c.DSN == "" && c.Dialect == "sqlite" {
		c.DSN = ".paygate/tasks.db"
	}
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case StorageBackendMemory:
		return nil
	case StorageBackendSQL:
	default:
		return fmt.Errorf("unknown storage.backend %q (valid: memory, sql)", c.Backend)
	}
	switch c.Dialect {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported storage.dialect %q (valid: sqlite, postgres, mysql)", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("storage.dsn is required for %s", c.Dialect)
	}
	return nil
}

// IsSQL reports whether tasks go to a SQL database.
func (c *StorageConfig) IsSQL() bool {
	return c.Backend == StorageBackendSQL
}
