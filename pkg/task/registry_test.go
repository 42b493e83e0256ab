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
	"sync"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/x402"
)

func textArtifact(id, text string) *a2a.Artifact {
	return &a2a.Artifact{ID: a2a.ArtifactID(id), Parts: []a2a.Part{a2a.TextPart{Text: text}}}
}

func boolPtr(b bool) *bool { return &b }

func partTexts(a *a2a.Artifact) []string {
	var out []string
	for _, p := range a.Parts {
		out = append(out, p.(a2a.TextPart).Text)
	}
	return out
}

func TestNewTaskStartsSubmitted(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	got := r.ApplyArtifact(ctx, "t1", "c1", textArtifact("a", "x"), false, boolPtr(false))
	assert.Equal(t, StateSubmitted, got.Status.State)
	assert.Equal(t, "c1", got.ContextID)
	assert.Empty(t, got.Artifacts)
}

// Scenario A: streamed chunks reassemble into one artifact.
func TestChunkedArtifactAssembly(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "He"), false, boolPtr(false))
	mid := r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "llo"), true, boolPtr(false))
	assert.Empty(t, mid.Artifacts, "partial artifacts must not be visible")

	done := r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "!"), true, boolPtr(true))
	require.Len(t, done.Artifacts, 1)
	assert.Equal(t, []string{"He", "llo", "!"}, partTexts(done.Artifacts[0]))

	// A later append for the same id has nothing to extend.
	again := r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "?"), true, boolPtr(true))
	assert.Len(t, again.Artifacts, 1)
}

func TestSingleShotArtifact(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	got := r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "whole"), false, nil)
	require.Len(t, got.Artifacts, 1)

	got = r.ApplyArtifact(ctx, "T", "C", textArtifact("B", "also whole"), false, boolPtr(true))
	require.Len(t, got.Artifacts, 2)
}

func TestAppendWithoutStartIsDropped(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	got := r.ApplyArtifact(ctx, "T", "C", textArtifact("ghost", "x"), true, boolPtr(true))
	assert.Empty(t, got.Artifacts)
	assert.Equal(t, StateSubmitted, got.Status.State)
}

func TestRestartReplacesOpenFragment(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "old"), false, boolPtr(false))
	r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "new"), false, boolPtr(false))
	got := r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "-end"), true, boolPtr(true))
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, []string{"new", "-end"}, partTexts(got.Artifacts[0]))
}

func TestTerminalStateIsFinal(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ApplyStatus(ctx, "T", "C", Status{State: StateWorking})
	done := r.ApplyStatus(ctx, "T", "C", Status{State: StateCompleted})
	assert.Equal(t, StateCompleted, done.Status.State)

	again := r.ApplyStatus(ctx, "T", "C", Status{State: StateCompleted})
	assert.Equal(t, StateCompleted, again.Status.State)

	late := r.ApplyStatus(ctx, "T", "C", Status{State: StateWorking})
	assert.Equal(t, StateCompleted, late.Status.State)

	artifact := r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "late"), false, nil)
	assert.Empty(t, artifact.Artifacts)

	raw := New("T", "C")
	raw.Status.State = StateWorking
	stale := r.ApplyRawTask(ctx, raw)
	assert.Equal(t, StateCompleted, stale.Status.State)

	flipped := New("T", "C")
	flipped.Status.State = StateFailed
	got := r.ApplyRawTask(ctx, flipped)
	assert.Equal(t, StateCompleted, got.Status.State)
}

func TestStatusNeverMovesBack(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ApplyStatus(ctx, "T", "C", Status{State: StateWorking})
	r.ApplyStatus(ctx, "T", "C", Status{State: StateInputRequired})
	got := r.ApplyStatus(ctx, "T", "C", Status{State: StateSubmitted})
	assert.Equal(t, StateInputRequired, got.Status.State)

	got = r.ApplyStatus(ctx, "T", "C", Status{State: StateWorking})
	assert.Equal(t, StateWorking, got.Status.State, "a suspended task resumes")

	got = r.ApplyStatus(ctx, "T", "C", Status{State: StateSubmitted})
	assert.Equal(t, StateWorking, got.Status.State)
}

func TestCanMoveTo(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateSubmitted, StateSubmitted, true},
		{StateSubmitted, StateWorking, true},
		{StateSubmitted, StateInputRequired, true},
		{StateWorking, StateInputRequired, true},
		{StateInputRequired, StateWorking, true},
		{StateWorking, StateCompleted, true},
		{StateInputRequired, StateFailed, true},
		{StateWorking, StateSubmitted, false},
		{StateInputRequired, StateSubmitted, false},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateWorking, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanMoveTo(tt.to))
		})
	}
}

func TestTerminalDiscardsPendingChunks(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "half"), false, boolPtr(false))
	r.ApplyStatus(ctx, "T", "C", Status{State: StateFailed})
	got, err := r.Get(ctx, "T")
	require.NoError(t, err)
	assert.Empty(t, got.Artifacts)
}

func TestApplyRawTaskMergesPayment(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ApplyStatus(ctx, "T", "C", Status{State: StateWorking})
	_, err := r.UpdatePayment(ctx, "T", func(pc *x402.PaymentContext) {
		pc.Status = x402.StatusRequired
		pc.Required = &x402.PaymentRequired{X402Version: 1}
	})
	require.NoError(t, err)

	raw := New("T", "")
	raw.Status.State = StateInputRequired
	got := r.ApplyRawTask(ctx, raw)
	assert.Equal(t, StateInputRequired, got.Status.State)
	assert.Equal(t, "C", got.ContextID)
	assert.NotNil(t, got.Payment.Required, "payment fields accumulate across raw records")
}

func TestApplyEvent(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "pay up"})
	msg.Metadata = map[string]any{
		x402.MetaKeyStatus: string(x402.StatusRequired),
		x402.MetaKeyRequired: map[string]any{
			"x402Version": 1,
			"accepts": []any{map[string]any{
				"scheme": "exact", "network": "base", "amount": "5", "asset": "USDC", "payTo": "0xabc",
			}},
		},
	}
	got, err := r.ApplyEvent(ctx, &a2a.TaskStatusUpdateEvent{
		TaskID:    "T",
		ContextID: "C",
		Status:    a2a.TaskStatus{State: a2a.TaskStateInputRequired, Message: msg},
		Final:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateInputRequired, got.Status.State)
	assert.Equal(t, x402.StatusRequired, got.Payment.Status)
	require.NotNil(t, got.Payment.Required)
	assert.Equal(t, "5", got.Payment.Required.Accepts[0].Amount)

	got, err = r.ApplyEvent(ctx, &a2a.TaskArtifactUpdateEvent{
		TaskID: "T", ContextID: "C", Artifact: textArtifact("A", "receipt"), LastChunk: true,
	})
	require.NoError(t, err)
	assert.Len(t, got.Artifacts, 1)

	got, err = r.ApplyEvent(ctx, &a2a.Task{
		ID:        "T2",
		ContextID: "C",
		Status:    a2a.TaskStatus{State: a2a.TaskStateCompleted},
		Metadata:  map[string]any{x402.MetaKeyStatus: string(x402.StatusCompleted)},
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.Status.State)
	assert.Equal(t, x402.StatusCompleted, got.Payment.Status)

	_, err = r.ApplyEvent(ctx, a2a.NewMessage(a2a.MessageRoleAgent))
	assert.True(t, errors.Is(err, ErrUnsupportedEvent))
}

func TestApplyEventArtifactWithoutLastChunk(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, err := r.ApplyEvent(ctx, &a2a.TaskArtifactUpdateEvent{
		TaskID: "T", ContextID: "C", Artifact: textArtifact("A", "hello"),
	})
	require.NoError(t, err)
	got, err := r.ApplyEvent(ctx, &a2a.TaskStatusUpdateEvent{
		TaskID: "T", ContextID: "C", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}, Final: true,
	})
	require.NoError(t, err)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, []string{"hello"}, partTexts(got.Artifacts[0]))
}

func TestApplyEventChunkedArtifact(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "He"), false, boolPtr(false))
	mid, err := r.ApplyEvent(ctx, &a2a.TaskArtifactUpdateEvent{
		TaskID: "T", ContextID: "C", Artifact: textArtifact("A", "llo"), Append: true,
	})
	require.NoError(t, err)
	assert.Empty(t, mid.Artifacts)

	done, err := r.ApplyEvent(ctx, &a2a.TaskArtifactUpdateEvent{
		TaskID: "T", ContextID: "C", Artifact: textArtifact("A", "!"), Append: true, LastChunk: true,
	})
	require.NoError(t, err)
	require.Len(t, done.Artifacts, 1)
	assert.Equal(t, []string{"He", "llo", "!"}, partTexts(done.Artifacts[0]))
}

func TestApplyRawTaskWithoutID(t *testing.T) {
	store := NewMemoryStore()
	r := NewRegistry(WithStore(store))
	ctx := context.Background()

	raw := New("", "C")
	raw.Status.State = StateWorking
	got := r.ApplyRawTask(ctx, raw)
	require.NotEmpty(t, got.ID)

	cur, err := r.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, cur.ID)

	saved, err := store.Load(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, saved.ID)
}

func TestGetUnknownTask(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = r.A2AStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, a2a.ErrTaskNotFound)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	snap := r.ApplyArtifact(ctx, "T", "C", textArtifact("A", "x"), false, nil)
	snap.Artifacts[0].Parts = append(snap.Artifacts[0].Parts, a2a.TextPart{Text: "mutated"})
	snap.Metadata["k"] = "v"

	cur, err := r.Get(ctx, "T")
	require.NoError(t, err)
	assert.Len(t, cur.Artifacts[0].Parts, 1)
	assert.NotContains(t, cur.Metadata, "k")
}

func TestConcurrentChunksPerTask(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	const tasks, chunks = 16, 50

	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		id := a2a.TaskID(fmt.Sprintf("task-%d", i))
		r.ApplyArtifact(ctx, id, "C", textArtifact("A", "start"), false, boolPtr(false))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < chunks; j++ {
				r.ApplyArtifact(ctx, id, "C", textArtifact("A", "."), true, boolPtr(false))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < tasks; i++ {
		id := a2a.TaskID(fmt.Sprintf("task-%d", i))
		got := r.ApplyArtifact(ctx, id, "C", textArtifact("A", "end"), true, boolPtr(true))
		require.Len(t, got.Artifacts, 1)
		assert.Len(t, got.Artifacts[0].Parts, chunks+2)
	}
}

func TestRegistryPersistsAndReloads(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r1 := NewRegistry(WithStore(store))
	r1.ApplyStatus(ctx, "T", "C", Status{State: StateInputRequired})

	r2 := NewRegistry(WithStore(store))
	got, err := r2.Get(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, StateInputRequired, got.Status.State)

	resumed := r2.ApplyStatus(ctx, "T", "", Status{State: StateWorking})
	assert.Equal(t, "C", resumed.ContextID)
}

func TestList(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	r.ApplyStatus(ctx, "a", "C1", Status{State: StateWorking})
	r.ApplyStatus(ctx, "b", "C2", Status{State: StateWorking})
	r.ApplyStatus(ctx, "c", "C1", Status{State: StateWorking})

	assert.Len(t, r.List("C1"), 2)
	assert.Len(t, r.List(""), 3)
}
