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
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// SQLStore persists task snapshots in a SQL database.
// Supported dialects are sqlite, postgres and mysql.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

type taskRow struct {
	ID            string
	ContextID     string
	State         string
	StatusJSON    string
	ArtifactsJSON string
	HistoryJSON   string
	PaymentJSON   string
	MetadataJSON  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS paygate_tasks (
    id VARCHAR(255) PRIMARY KEY,
    context_id VARCHAR(255) NOT NULL,
    state VARCHAR(32) NOT NULL,
    status_json TEXT NOT NULL,
    artifacts_json TEXT,
    history_json TEXT,
    payment_json TEXT,
    metadata_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createTasksContextIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_paygate_tasks_context_id ON paygate_tasks(context_id)`

	selectTaskColumns = `id, context_id, state, status_json, artifacts_json, history_json, payment_json, metadata_json, created_at, updated_at`
)

// storedStatus is the persisted form of Status.
type storedStatus struct {
	State     State        `json:"state"`
	Message   *a2a.Message `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// OpenSQLStore opens a database with the driver matching dialect and prepares
// the schema.
func OpenSQLStore(dialect, dsn string) (*SQLStore, error) {
	dialect = normalizeDialect(dialect)
	driver := dialect
	if dialect == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == "sqlite" {
		// SQLite serializes writers; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	dialect = normalizeDialect(dialect)
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func normalizeDialect(d string) string {
	switch strings.ToLower(d) {
	case "sqlite3", "sqlite":
		return "sqlite"
	case "postgresql", "postgres", "pg":
		return "postgres"
	}
	return strings.ToLower(d)
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createTasksTableSQL); err != nil {
		return fmt.Errorf("failed to create paygate_tasks table: %w", err)
	}
	index := createTasksContextIndexSQL
	if s.dialect == "mysql" {
		// MySQL has no CREATE INDEX IF NOT EXISTS.
		index = `CREATE INDEX idx_paygate_tasks_context_id ON paygate_tasks(context_id)`
		if _, err := s.db.ExecContext(ctx, index); err != nil && !strings.Contains(err.Error(), "Duplicate key name") {
			return fmt.Errorf("failed to create context_id index: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create context_id index: %w", err)
	}
	return nil
}

// Save upserts a snapshot.
func (s *SQLStore) Save(ctx context.Context, t *Task) error {
	if t == nil {
		return fmt.Errorf("task is required")
	}
	row, err := toRow(t)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	var query string
	switch s.dialect {
	case "mysql":
		query = `
INSERT INTO paygate_tasks (` + selectTaskColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    context_id = VALUES(context_id),
    state = VALUES(state),
    status_json = VALUES(status_json),
    artifacts_json = VALUES(artifacts_json),
    history_json = VALUES(history_json),
    payment_json = VALUES(payment_json),
    metadata_json = VALUES(metadata_json),
    updated_at = VALUES(updated_at)`
	default:
		// PostgreSQL and SQLite 3.24+ share the ON CONFLICT form, which keeps created_at.
		query = `
INSERT INTO paygate_tasks (` + selectTaskColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    context_id = excluded.context_id,
    state = excluded.state,
    status_json = excluded.status_json,
    artifacts_json = excluded.artifacts_json,
    history_json = excluded.history_json,
    payment_json = excluded.payment_json,
    metadata_json = excluded.metadata_json,
    updated_at = excluded.updated_at`
	}

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		row.ID, row.ContextID, row.State, row.StatusJSON,
		row.ArtifactsJSON, row.HistoryJSON, row.PaymentJSON, row.MetadataJSON,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Load returns the snapshot of id.
func (s *SQLStore) Load(ctx context.Context, id a2a.TaskID) (*Task, error) {
	query := s.rebind(`SELECT ` + selectTaskColumns + ` FROM paygate_tasks WHERE id = ?`)

	var row taskRow
	err := s.db.QueryRowContext(ctx, query, string(id)).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		slog.Error("Task store query failed", "taskID", id, "error", err)
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return fromRow(&row)
}

// ListByContext returns the snapshots of a context, oldest first.
func (s *SQLStore) ListByContext(ctx context.Context, contextID string) ([]*Task, error) {
	query := s.rebind(`SELECT ` + selectTaskColumns + ` FROM paygate_tasks WHERE context_id = ? ORDER BY created_at`)
	rows, err := s.db.QueryContext(ctx, query, contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var row taskRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t, err := fromRow(&row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (r *taskRow) dest() []any {
	return []any{
		&r.ID, &r.ContextID, &r.State, &r.StatusJSON,
		&r.ArtifactsJSON, &r.HistoryJSON, &r.PaymentJSON, &r.MetadataJSON,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

func toRow(t *Task) (*taskRow, error) {
	status, err := json.Marshal(storedStatus{State: t.Status.State, Message: t.Status.Message, Timestamp: t.Status.Timestamp})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	artifacts, err := json.Marshal(t.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifacts: %w", err)
	}
	history, err := json.Marshal(t.History)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	pmd, err := t.Payment.Metadata()
	if err != nil {
		return nil, err
	}
	payment, err := json.Marshal(pmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment: %w", err)
	}
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	return &taskRow{
		ID:            string(t.ID),
		ContextID:     t.ContextID,
		State:         string(t.Status.State),
		StatusJSON:    string(status),
		ArtifactsJSON: string(artifacts),
		HistoryJSON:   string(history),
		PaymentJSON:   string(payment),
		MetadataJSON:  string(metadata),
		CreatedAt:     created,
		UpdatedAt:     updated,
	}, nil
}

func fromRow(row *taskRow) (*Task, error) {
	t := &Task{
		ID:        a2a.TaskID(row.ID),
		ContextID: row.ContextID,
		Artifacts: make([]*a2a.Artifact, 0),
		Metadata:  make(map[string]any),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}

	var status storedStatus
	if err := json.Unmarshal([]byte(row.StatusJSON), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	t.Status = Status{State: status.State, Message: status.Message, Timestamp: status.Timestamp}

	if notEmptyJSON(row.ArtifactsJSON) {
		if err := json.Unmarshal([]byte(row.ArtifactsJSON), &t.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
		}
	}
	if notEmptyJSON(row.HistoryJSON) {
		if err := json.Unmarshal([]byte(row.HistoryJSON), &t.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}
	if notEmptyJSON(row.MetadataJSON) {
		if err := json.Unmarshal([]byte(row.MetadataJSON), &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if notEmptyJSON(row.PaymentJSON) {
		var pmd map[string]any
		if err := json.Unmarshal([]byte(row.PaymentJSON), &pmd); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
		}
		pc, err := x402.FromMetadata(pmd)
		if err != nil {
			return nil, err
		}
		t.Payment = pc
	}
	return t, nil
}

func notEmptyJSON(s string) bool {
	return s != "" && s != "null" && s != "[]" && s != "{}"
}

var _ Store = (*SQLStore)(nil)
