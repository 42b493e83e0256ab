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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/google/uuid"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// Registry is the authoritative store of tasks for one agent.
//
// Operations on the same task ID are serialized. Operations on distinct IDs
// only share a short critical section that looks up the per-task entry.
// Every apply operation returns a snapshot the caller may keep.
type Registry struct {
	mu      sync.RWMutex
	entries map[a2a.TaskID]*entry
	store   Store
}

type entry struct {
	mu        sync.Mutex
	task      *Task
	assembler *Assembler
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStore persists a snapshot after every mutation and loads unknown tasks
// from s on lookup.
func WithStore(s Store) RegistryOption {
	return func(r *Registry) {
		r.store = s
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{entries: make(map[a2a.TaskID]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyStatus records a status update, creating the task if it is unknown.
// Payment fields carried in the status message metadata are merged into the
// payment context. Updates to a terminal task and moves back to an earlier
// state are ignored.
func (r *Registry) ApplyStatus(ctx context.Context, id a2a.TaskID, contextID string, status Status) *Task {
	return r.applyStatus(ctx, id, contextID, status, x402.PaymentContext{})
}

func (r *Registry) applyStatus(ctx context.Context, id a2a.TaskID, contextID string, status Status, payment x402.PaymentContext) *Task {
	e := r.acquire(ctx, id, contextID)
	defer e.mu.Unlock()

	t := e.task
	if t.Status.State.IsTerminal() {
		if status.State != t.Status.State {
			slog.Warn("Ignoring status update for terminal task",
				"taskID", id, "state", t.Status.State, "update", status.State)
		}
		return t.Clone()
	}
	if !t.Status.State.CanMoveTo(status.State) {
		slog.Warn("Ignoring backward status update",
			"taskID", id, "state", t.Status.State, "update", status.State)
		return t.Clone()
	}

	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	if pc, err := paymentFromMessage(status.Message); err != nil {
		slog.Warn("Ignoring malformed payment metadata", "taskID", id, "error", err)
	} else {
		t.Payment.Merge(pc)
	}
	t.Payment.Merge(payment)
	t.Status = status
	if t.Status.State.IsTerminal() && e.assembler.Pending() > 0 {
		slog.Debug("Discarding unfinished artifacts of finished task", "taskID", id, "pending", e.assembler.Pending())
		e.assembler.Discard()
	}
	return r.commit(ctx, t)
}

// ApplyArtifact folds an artifact event into the task, creating the task if
// it is unknown. Chunks are buffered until the last one arrives; an append
// for an artifact that was never started is dropped.
func (r *Registry) ApplyArtifact(ctx context.Context, id a2a.TaskID, contextID string, artifact *a2a.Artifact, appendParts bool, lastChunk *bool) *Task {
	e := r.acquire(ctx, id, contextID)
	defer e.mu.Unlock()

	t := e.task
	if t.Status.State.IsTerminal() {
		slog.Warn("Ignoring artifact for terminal task", "taskID", id, "state", t.Status.State)
		return t.Clone()
	}

	done := e.assembler.Add(artifact, appendParts, lastChunk)
	if done == nil {
		return t.Clone()
	}
	t.Artifacts = append(t.Artifacts, done)
	return r.commit(ctx, t)
}

// ApplyRawTask installs a complete task record as sent by a remote agent. A
// terminal task is never replaced. A record without an ID is filed under a
// generated one. Payment fields only
// accumulate, so the record's payment context is merged over the current one.
func (r *Registry) ApplyRawTask(ctx context.Context, raw *Task) *Task {
	if raw == nil {
		return nil
	}
	e := r.acquire(ctx, raw.ID, raw.ContextID)
	defer e.mu.Unlock()

	cur := e.task
	if cur.Status.State.IsTerminal() {
		if raw.Status.State != cur.Status.State {
			slog.Warn("Ignoring task record for terminal task", "taskID", cur.ID,
				"state", cur.Status.State, "record", raw.Status.State)
		}
		return cur.Clone()
	}

	t := raw.Clone()
	t.ID = cur.ID
	payment := cur.Payment.Clone()
	payment.Merge(t.Payment)
	t.Payment = payment
	t.CreatedAt = cur.CreatedAt
	if t.ContextID == "" {
		t.ContextID = cur.ContextID
	}
	if t.Status.Timestamp.IsZero() {
		t.Status.Timestamp = time.Now()
	}
	e.task = t
	return r.commit(ctx, t)
}

// UpdatePayment mutates the payment context of an existing task.
func (r *Registry) UpdatePayment(ctx context.Context, id a2a.TaskID, fn func(*x402.PaymentContext)) (*Task, error) {
	e, err := r.existing(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	fn(&e.task.Payment)
	return r.commit(ctx, e.task), nil
}

// ApplyEvent dispatches an A2A event to the matching apply operation.
// Messages and unknown events are rejected without touching any task.
func (r *Registry) ApplyEvent(ctx context.Context, event a2a.Event) (*Task, error) {
	switch ev := event.(type) {
	case *a2a.Task:
		t, err := FromA2A(ev)
		if err != nil {
			return nil, err
		}
		return r.ApplyRawTask(ctx, t), nil
	case *a2a.TaskStatusUpdateEvent:
		status := Status{
			State:   StateFromA2A(ev.Status.State),
			Message: ev.Status.Message,
		}
		pc, err := x402.FromMetadata(ev.Metadata)
		if err != nil {
			slog.Warn("Ignoring malformed payment metadata", "taskID", ev.TaskID, "error", err)
			pc = x402.PaymentContext{}
		}
		return r.applyStatus(ctx, ev.TaskID, ev.ContextID, status, pc), nil
	case *a2a.TaskArtifactUpdateEvent:
		// The wire form cannot tell an omitted lastChunk from false. A fresh
		// artifact without it is complete.
		var lastChunk *bool
		if ev.Append || ev.LastChunk {
			lastChunk = &ev.LastChunk
		}
		return r.ApplyArtifact(ctx, ev.TaskID, ev.ContextID, ev.Artifact, ev.Append, lastChunk), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEvent, event)
	}
}

// Get returns a snapshot of the task.
func (r *Registry) Get(ctx context.Context, id a2a.TaskID) (*Task, error) {
	e, err := r.existing(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// List returns snapshots of the in-memory tasks of a context, oldest first.
func (r *Registry) List(contextID string) []*Task {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []*Task
	for _, e := range entries {
		e.mu.Lock()
		if e.task != nil && (contextID == "" || e.task.ContextID == contextID) {
			out = append(out, e.task.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SaveA2A installs a task record in wire form.
func (r *Registry) SaveA2A(ctx context.Context, at *a2a.Task) error {
	t, err := FromA2A(at)
	if err != nil {
		return err
	}
	r.ApplyRawTask(ctx, t)
	return nil
}

// getA2A returns the wire form of a task, reporting a miss as a2a.ErrTaskNotFound.
func (r *Registry) getA2A(ctx context.Context, id a2a.TaskID) (*a2a.Task, error) {
	t, err := r.Get(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return t.ToA2A()
}

// A2AStore adapts the registry to a2asrv.TaskStore so the protocol handler and
// the executors share one view of every task.
func (r *Registry) A2AStore() a2asrv.TaskStore {
	return a2aStore{r}
}

type a2aStore struct{ r *Registry }

func (s a2aStore) Save(ctx context.Context, t *a2a.Task) error { return s.r.SaveA2A(ctx, t) }

func (s a2aStore) Get(ctx context.Context, id a2a.TaskID) (*a2a.Task, error) {
	return s.r.getA2A(ctx, id)
}

var _ a2asrv.TaskStore = a2aStore{}

// acquire returns the locked entry for id, creating the task when neither
// memory nor the store knows it.
func (r *Registry) acquire(ctx context.Context, id a2a.TaskID, contextID string) *entry {
	if id == "" {
		id = a2a.TaskID(uuid.NewString())
	}
	e := r.entry(id)
	e.mu.Lock()
	if e.task == nil {
		e.task = r.load(ctx, id)
	}
	if e.task == nil {
		e.task = New(id, contextID)
	}
	if e.task.ContextID == "" {
		e.task.ContextID = contextID
	}
	return e
}

// existing returns the locked entry for a known task.
func (r *Registry) existing(ctx context.Context, id a2a.TaskID) (*entry, error) {
	r.mu.RLock()
	e := r.entries[id]
	r.mu.RUnlock()

	if e == nil {
		t := r.load(ctx, id)
		if t == nil {
			return nil, ErrTaskNotFound
		}
		e = r.entry(id)
		e.mu.Lock()
		if e.task == nil {
			e.task = t
		}
		return e, nil
	}

	e.mu.Lock()
	if e.task == nil {
		e.task = r.load(ctx, id)
	}
	if e.task == nil {
		e.mu.Unlock()
		return nil, ErrTaskNotFound
	}
	return e, nil
}

func (r *Registry) entry(id a2a.TaskID) *entry {
	r.mu.RLock()
	e := r.entries[id]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.entries[id]; e == nil {
		e = &entry{assembler: NewAssembler()}
		r.entries[id] = e
	}
	return e
}

func (r *Registry) load(ctx context.Context, id a2a.TaskID) *Task {
	if r.store == nil {
		return nil
	}
	t, err := r.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			slog.Warn("Failed to load task", "taskID", id, "error", err)
		}
		return nil
	}
	return t
}

// commit stamps the task, persists it and returns a snapshot. Persistence
// failures are logged and never fail the update.
func (r *Registry) commit(ctx context.Context, t *Task) *Task {
	t.UpdatedAt = time.Now()
	snap := t.Clone()
	if r.store != nil {
		if err := r.store.Save(ctx, snap); err != nil {
			slog.Warn("Failed to persist task", "taskID", t.ID, "error", err)
		}
	}
	return snap
}
