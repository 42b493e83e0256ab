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

package task

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/paygate/pkg/config"
)

// NewStoreFromConfig creates the task Store named by the storage section.
//
//	storage:
//	  backend: sql
//	  dialect: sqlite
//	  dsn: .paygate/tasks.db
func NewStoreFromConfig(cfg *config.StorageConfig) (Store, error) {
	if cfg == nil || !cfg.IsSQL() {
		return NewMemoryStore(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if normalizeDialect(cfg.Dialect) == "sqlite" {
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
	}

	store, err := OpenSQLStore(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	slog.Info("Task store ready", "backend", cfg.Backend, "dialect", cfg.Dialect)
	return store, nil
}

// ensureSQLiteDir creates the directory of a file DSN.
func ensureSQLiteDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create task store directory %s: %w", dir, err)
	}
	return nil
}
