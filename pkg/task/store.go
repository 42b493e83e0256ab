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
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
)

// Store persists task snapshots for a Registry.
type Store interface {
	// Save upserts a snapshot.
	Save(ctx context.Context, t *Task) error

	// Load returns the snapshot of id or ErrTaskNotFound.
	Load(ctx context.Context, id a2a.TaskID) (*Task, error)

	// ListByContext returns the snapshots of a context.
	ListByContext(ctx context.Context, contextID string) ([]*Task, error)

	Close() error
}

// MemoryStore keeps snapshots in memory.
type MemoryStore struct {
	tasks map[a2a.TaskID]*Task
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[a2a.TaskID]*Task)}
}

func (s *MemoryStore) Save(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id a2a.TaskID) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListByContext(_ context.Context, contextID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.ContextID == contextID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
