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

package payment

import (
	"context"
	"fmt"
	"maps"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/kadirpekel/paygate/pkg/observability"
	"github.com/kadirpekel/paygate/pkg/task"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// Updater publishes the progress of one task. Every event is applied to the
// registry first and then written to the A2A event queue, so local readers
// and remote subscribers see the same sequence.
type Updater struct {
	registry *task.Registry
	queue    eventqueue.Queue
	reqCtx   *a2asrv.RequestContext
}

// NewUpdater creates an updater for the task of reqCtx.
func NewUpdater(registry *task.Registry, queue eventqueue.Queue, reqCtx *a2asrv.RequestContext) *Updater {
	return &Updater{registry: registry, queue: queue, reqCtx: reqCtx}
}

// TaskID returns the ID of the task being updated.
func (u *Updater) TaskID() a2a.TaskID {
	return u.reqCtx.TaskID
}

// ContextID returns the conversation the task belongs to.
func (u *Updater) ContextID() string {
	return u.reqCtx.ContextID
}

// Submit records a new task.
func (u *Updater) Submit(ctx context.Context) error {
	return u.status(ctx, task.StateSubmitted, "", x402.PaymentContext{}, false)
}

// Working reports progress. It satisfies the run emitter of llmagent.
func (u *Updater) Working(ctx context.Context, text string) error {
	return u.status(ctx, task.StateWorking, text, x402.PaymentContext{}, false)
}

// PaymentProgress reports a payment step while the task keeps working.
func (u *Updater) PaymentProgress(ctx context.Context, text string, pc x402.PaymentContext) error {
	return u.status(ctx, task.StateWorking, text, pc, false)
}

// AddArtifact publishes one complete artifact.
func (u *Updater) AddArtifact(ctx context.Context, parts ...a2a.Part) error {
	ev := a2a.NewArtifactEvent(u.reqCtx, parts...)
	ev.LastChunk = true
	return u.publish(ctx, ev)
}

// Complete ends the task successfully.
func (u *Updater) Complete(ctx context.Context) error {
	return u.status(ctx, task.StateCompleted, "", x402.PaymentContext{}, true)
}

// RequirePayment suspends the task until the requester pays.
func (u *Updater) RequirePayment(ctx context.Context, text string, pc x402.PaymentContext) error {
	return u.status(ctx, task.StateInputRequired, text, pc, true)
}

// Fail ends the task unsuccessfully with reason as the status message.
func (u *Updater) Fail(ctx context.Context, reason string, pc x402.PaymentContext) error {
	return u.status(ctx, task.StateFailed, reason, pc, true)
}

func (u *Updater) status(ctx context.Context, state task.State, text string, pc x402.PaymentContext, final bool) error {
	var md map[string]any
	if !pc.IsZero() {
		var err error
		if md, err = pc.Metadata(); err != nil {
			return fmt.Errorf("failed to encode payment metadata: %w", err)
		}
	}

	var msg *a2a.Message
	if text != "" {
		msg = a2a.NewMessageForTask(a2a.MessageRoleAgent, u.reqCtx, a2a.TextPart{Text: text})
		if md != nil {
			msg.Metadata = maps.Clone(md)
		}
	}

	ev := a2a.NewStatusUpdateEvent(u.reqCtx, state.A2A(), msg)
	ev.Final = final
	if md != nil {
		ev.Metadata = md
	}

	if err := u.publish(ctx, ev); err != nil {
		return err
	}
	observability.GetGlobalMetrics().RecordTaskTransition(ctx, string(state))
	return nil
}

func (u *Updater) publish(ctx context.Context, ev a2a.Event) error {
	if _, err := u.registry.ApplyEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to apply event: %w", err)
	}
	if err := u.queue.Write(ctx, ev); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
