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
	"maps"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// ToA2A renders the task in wire form. The payment context is encoded under
// the shared x402 metadata keys.
func (t *Task) ToA2A() (*a2a.Task, error) {
	md := maps.Clone(t.Metadata)
	if md == nil {
		md = make(map[string]any)
	}
	pmd, err := t.Payment.Metadata()
	if err != nil {
		return nil, fmt.Errorf("encode payment context: %w", err)
	}
	maps.Copy(md, pmd)

	artifacts := make([]*a2a.Artifact, len(t.Artifacts))
	for i, a := range t.Artifacts {
		artifacts[i] = cloneArtifact(a)
	}

	return &a2a.Task{
		ID:        t.ID,
		ContextID: t.ContextID,
		Status: a2a.TaskStatus{
			State:   t.Status.State.A2A(),
			Message: t.Status.Message,
		},
		Artifacts: artifacts,
		History:   append([]*a2a.Message(nil), t.History...),
		Metadata:  md,
	}, nil
}

// FromA2A builds a task from its wire form. Payment fields are read from the
// task metadata, falling back to the status message metadata where remote
// agents commonly place them.
func FromA2A(at *a2a.Task) (*Task, error) {
	if at == nil {
		return nil, fmt.Errorf("task is required")
	}
	payment, err := paymentFromMessage(at.Status.Message)
	if err != nil {
		return nil, err
	}
	fromTask, err := x402.FromMetadata(at.Metadata)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", at.ID, err)
	}
	payment.Merge(fromTask)

	now := time.Now()
	t := &Task{
		ID:        at.ID,
		ContextID: at.ContextID,
		Status: Status{
			State:     StateFromA2A(at.Status.State),
			Message:   at.Status.Message,
			Timestamp: now,
		},
		Artifacts: make([]*a2a.Artifact, 0, len(at.Artifacts)),
		History:   append([]*a2a.Message(nil), at.History...),
		Payment:   payment,
		Metadata:  x402.StripMetadata(at.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, a := range at.Artifacts {
		t.Artifacts = append(t.Artifacts, cloneArtifact(a))
	}
	return t, nil
}

func paymentFromMessage(msg *a2a.Message) (x402.PaymentContext, error) {
	if msg == nil || !x402.HasPaymentKeys(msg.Metadata) {
		return x402.PaymentContext{}, nil
	}
	pc, err := x402.FromMetadata(msg.Metadata)
	if err != nil {
		return pc, fmt.Errorf("status message: %w", err)
	}
	return pc, nil
}
