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

// Package task tracks A2A tasks and reassembles their streamed artifacts.
//
// Both sides of a paid interaction keep tasks here:
//   - the provider records the state it emits (including the payment challenge)
//   - the requester folds the events it receives into the same model
//
// The state machine is submitted → working → input_required → working →
// completed | failed. Terminal states accept no further transitions.
package task

import (
	"maps"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// State represents the current state of a task.
type State string

const (
	// StateSubmitted means the task has been created but not started.
	StateSubmitted State = "submitted"

	// StateWorking means the task is being processed.
	StateWorking State = "working"

	// StateInputRequired means the task is suspended waiting for the requester.
	StateInputRequired State = "input_required"

	// StateCompleted means the task finished successfully.
	StateCompleted State = "completed"

	// StateFailed means the task failed.
	StateFailed State = "failed"

	// StateCanceled and StateRejected are only ever received from remote agents.
	StateCanceled State = "canceled"
	StateRejected State = "rejected"
)

// IsTerminal returns whether this state is terminal (no more transitions).
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled, StateRejected:
		return true
	}
	return false
}

// stage orders states: a task never goes back to an earlier stage.
func (s State) stage() int {
	switch {
	case s == StateSubmitted:
		return 0
	case s.IsTerminal():
		return 2
	}
	return 1
}

// CanMoveTo reports whether a task in state s accepts next. Working and
// input_required share a stage, so a suspended task may resume.
func (s State) CanMoveTo(next State) bool {
	return !s.IsTerminal() && next.stage() >= s.stage()
}

// A2A converts the state to its wire form.
func (s State) A2A() a2a.TaskState {
	switch s {
	case StateSubmitted:
		return a2a.TaskStateSubmitted
	case StateWorking:
		return a2a.TaskStateWorking
	case StateInputRequired:
		return a2a.TaskStateInputRequired
	case StateCompleted:
		return a2a.TaskStateCompleted
	case StateFailed:
		return a2a.TaskStateFailed
	case StateCanceled:
		return a2a.TaskStateCanceled
	}
	return a2a.TaskState(strings.ReplaceAll(string(s), "_", "-"))
}

// StateFromA2A converts a wire state.
func StateFromA2A(s a2a.TaskState) State {
	switch s {
	case a2a.TaskStateSubmitted:
		return StateSubmitted
	case a2a.TaskStateWorking:
		return StateWorking
	case a2a.TaskStateInputRequired:
		return StateInputRequired
	case a2a.TaskStateCompleted:
		return StateCompleted
	case a2a.TaskStateFailed:
		return StateFailed
	case a2a.TaskStateCanceled:
		return StateCanceled
	}
	return State(strings.ReplaceAll(string(s), "-", "_"))
}

// Status contains the task state and an optional message.
type Status struct {
	State     State
	Message   *a2a.Message
	Timestamp time.Time
}

// Task is the registry's record of a unit of work.
type Task struct {
	// ID is immutable once assigned.
	ID a2a.TaskID

	// ContextID links the task to a conversation.
	ContextID string

	Status Status

	// Artifacts only ever grows. Partially assembled artifacts never appear here.
	Artifacts []*a2a.Artifact

	History []*a2a.Message

	// Payment holds the x402 fields of the task.
	Payment x402.PaymentContext

	// Metadata holds everything else carried in the A2A task metadata.
	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a task in the submitted state.
func New(id a2a.TaskID, contextID string) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		ContextID: contextID,
		Status:    Status{State: StateSubmitted, Timestamp: now},
		Artifacts: make([]*a2a.Artifact, 0),
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no mutable state with t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Artifacts = make([]*a2a.Artifact, len(t.Artifacts))
	for i, a := range t.Artifacts {
		out.Artifacts[i] = cloneArtifact(a)
	}
	out.History = append([]*a2a.Message(nil), t.History...)
	out.Payment = t.Payment.Clone()
	out.Metadata = maps.Clone(t.Metadata)
	if out.Metadata == nil {
		out.Metadata = make(map[string]any)
	}
	return &out
}

// ArtifactTexts returns the text of every text part of every finalized artifact.
func (t *Task) ArtifactTexts() []string {
	var texts []string
	for _, a := range t.Artifacts {
		for _, p := range a.Parts {
			if tp, ok := p.(a2a.TextPart); ok && tp.Text != "" {
				texts = append(texts, tp.Text)
			}
		}
	}
	return texts
}

func cloneArtifact(a *a2a.Artifact) *a2a.Artifact {
	if a == nil {
		return nil
	}
	out := *a
	out.Parts = append(a.Parts[:0:0], a.Parts...)
	out.Metadata = maps.Clone(a.Metadata)
	return &out
}
