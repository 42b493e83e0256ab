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

// Package payment puts business logic behind an x402 payment gate.
//
// The Gate is an a2asrv.AgentExecutor. It runs the wrapped BusinessExecutor
// and turns a *tool.NeedsPayment outcome into a payment challenge: the
// options are enriched with facilitator fees, recorded on the task, and the
// task is suspended in input_required.
//
// When the requester resends the task with a signed payload the Gate
// verifies it, settles it, and runs the business logic again with
// Invocation.Verified set. Verified is handed out exactly once per
// settlement. An invalid payload is never settled.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/paygate/pkg/auth"
	"github.com/kadirpekel/paygate/pkg/observability"
	"github.com/kadirpekel/paygate/pkg/task"
	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// Invocation is one run of the business logic.
type Invocation struct {
	// Task is the task as it was when the run started.
	Task *task.Task

	// Message is the inbound message.
	Message *a2a.Message

	// Updater publishes artifacts and status for the task.
	Updater *Updater

	// Verified is set only on the run that follows a successful settlement.
	Verified *x402.VerifiedPayment
}

// BusinessExecutor is the logic behind the gate.
type BusinessExecutor interface {
	Execute(ctx context.Context, inv *Invocation) (tool.Outcome, error)
}

// BusinessExecutorFunc adapts a function to BusinessExecutor.
type BusinessExecutorFunc func(ctx context.Context, inv *Invocation) (tool.Outcome, error)

// Execute calls f.
func (f BusinessExecutorFunc) Execute(ctx context.Context, inv *Invocation) (tool.Outcome, error) {
	return f(ctx, inv)
}

// Gate implements a2asrv.AgentExecutor with in-band payment.
type Gate struct {
	business  BusinessExecutor
	registry  *task.Registry
	processor Processor
	enricher  *FeeEnricher
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithFeeEnricher attaches facilitator fees to every challenge.
func WithFeeEnricher(e *FeeEnricher) GateOption {
	return func(g *Gate) {
		g.enricher = e
	}
}

// NewGate wraps business with a payment gate.
func NewGate(business BusinessExecutor, registry *task.Registry, processor Processor, opts ...GateOption) *Gate {
	g := &Gate{business: business, registry: registry, processor: processor}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute implements a2asrv.AgentExecutor.
func (g *Gate) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	if reqCtx.Message == nil {
		return fmt.Errorf("message not provided")
	}

	attrs := []attribute.KeyValue{attribute.String(observability.AttrTaskID, string(reqCtx.TaskID))}
	if caller := auth.Caller(ctx); caller != "" {
		attrs = append(attrs, attribute.String(observability.AttrCaller, caller))
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanGateExecute, attrs...)
	err := g.execute(ctx, reqCtx, queue)
	observability.EndSpan(span, err)
	return err
}

func (g *Gate) execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	updater := NewUpdater(g.registry, queue, reqCtx)

	if reqCtx.StoredTask != nil {
		stored, err := task.FromA2A(reqCtx.StoredTask)
		if err != nil {
			return fmt.Errorf("failed to read stored task: %w", err)
		}
		g.registry.ApplyRawTask(ctx, stored)
	} else if err := updater.Submit(ctx); err != nil {
		return err
	}

	payload, err := x402.SubmittedPayload(reqCtx.Message.Metadata)
	if err != nil {
		reason := fmt.Sprintf("%v: %v", ErrInvalidSubmission, err)
		if failErr := updater.Fail(ctx, reason, x402.PaymentContext{Status: x402.StatusFailed, Error: reason}); failErr != nil {
			return failErr
		}
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if payload != nil {
		return g.resume(ctx, reqCtx, updater, payload)
	}

	if err := updater.Working(ctx, ""); err != nil {
		return err
	}
	return g.run(ctx, reqCtx, updater, nil)
}

// resume verifies and settles a submitted payment, then reruns the business
// logic with the settlement.
func (g *Gate) resume(ctx context.Context, reqCtx *a2asrv.RequestContext, updater *Updater, payload *x402.PaymentPayload) error {
	current, err := g.registry.Get(ctx, reqCtx.TaskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	metrics := observability.GetGlobalMetrics()

	required := current.Payment.Required
	if required == nil || len(required.Accepts) == 0 {
		slog.Warn("Payment submitted without a challenge", "taskID", reqCtx.TaskID)
		pc := x402.PaymentContext{Status: x402.StatusFailed, Error: ErrNoPaymentChallenge.Error()}
		if err := updater.Fail(ctx, ErrNoPaymentChallenge.Error(), pc); err != nil {
			return err
		}
		return ErrNoPaymentChallenge
	}

	req, ok := required.Match(payload)
	if !ok {
		return g.fail(ctx, updater, ErrNoMatchingRequirement.Error())
	}

	if err := updater.PaymentProgress(ctx, "Verifying payment.", x402.PaymentContext{
		Status:  x402.StatusSubmitted,
		Payload: payload,
	}); err != nil {
		return err
	}

	vctx, vspan := observability.StartSpan(ctx, observability.SpanVerify,
		attribute.String(observability.AttrPaymentNetwork, req.Network))
	verify, err := g.processor.Verify(vctx, payload, req)
	observability.EndSpan(vspan, err)
	if err != nil {
		metrics.RecordPayment(ctx, observability.StageVerify, observability.OutcomeError)
		slog.Error("Payment verification unavailable", "taskID", reqCtx.TaskID, "error", err)
		return g.fail(ctx, updater, fmt.Sprintf("payment verification failed: %v", err))
	}
	if !verify.IsValid {
		metrics.RecordPayment(ctx, observability.StageVerify, observability.OutcomeRejected)
		reason := verify.InvalidReason
		if reason == "" {
			reason = "payment verification failed"
		}
		slog.Info("Payment rejected", "taskID", reqCtx.TaskID, "reason", reason)
		return g.fail(ctx, updater, reason)
	}
	metrics.RecordPayment(ctx, observability.StageVerify, observability.OutcomeOK)

	if err := updater.PaymentProgress(ctx, "Payment verified. Settling.", x402.PaymentContext{
		Status: x402.StatusVerified,
	}); err != nil {
		return err
	}

	sctx, sspan := observability.StartSpan(ctx, observability.SpanSettle,
		attribute.String(observability.AttrPaymentNetwork, req.Network))
	settle, err := g.processor.Settle(sctx, payload, req)
	observability.EndSpan(sspan, err)
	if err != nil {
		metrics.RecordPayment(ctx, observability.StageSettle, observability.OutcomeError)
		slog.Error("Payment settlement unavailable", "taskID", reqCtx.TaskID, "error", err)
		return g.fail(ctx, updater, fmt.Sprintf("payment settlement failed: %v", err))
	}
	if !settle.Success {
		metrics.RecordPayment(ctx, observability.StageSettle, observability.OutcomeRejected)
		reason := settle.ErrorReason
		if reason == "" {
			reason = "payment settlement failed"
		}
		return g.fail(ctx, updater, reason)
	}
	metrics.RecordPayment(ctx, observability.StageSettle, observability.OutcomeOK)

	receipts := append(append([]x402.SettleResponse(nil), current.Payment.Receipts...), *settle)
	if err := updater.PaymentProgress(ctx, "Payment settled.", x402.PaymentContext{
		Status:   x402.StatusCompleted,
		Receipts: receipts,
	}); err != nil {
		return err
	}
	slog.Info("Payment settled", "taskID", reqCtx.TaskID, "transaction", settle.Transaction, "network", settle.Network)

	payer := settle.Payer
	if payer == "" {
		payer = verify.Payer
	}
	verified := &x402.VerifiedPayment{Transaction: settle.Transaction, Network: settle.Network, Payer: payer}
	return g.run(ctx, reqCtx, updater, verified)
}

// run invokes the business logic once and maps its outcome onto the task.
func (g *Gate) run(ctx context.Context, reqCtx *a2asrv.RequestContext, updater *Updater, verified *x402.VerifiedPayment) error {
	snapshot, err := g.registry.Get(ctx, reqCtx.TaskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	inv := &Invocation{Task: snapshot, Message: reqCtx.Message, Updater: updater, Verified: verified}
	outcome, err := g.business.Execute(ctx, inv)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		slog.Error("Business logic failed", "taskID", reqCtx.TaskID, "error", err)
		return updater.Fail(ctx, err.Error(), x402.PaymentContext{})
	}

	switch o := outcome.(type) {
	case *tool.NeedsPayment:
		return g.requirePayment(ctx, updater, o)
	case tool.Failed:
		return updater.Fail(ctx, o.Reason, x402.PaymentContext{})
	default:
		return g.ensureFinished(ctx, updater)
	}
}

// requirePayment records the challenge and suspends the task.
func (g *Gate) requirePayment(ctx context.Context, updater *Updater, np *tool.NeedsPayment) error {
	if len(np.Requirements) == 0 {
		return updater.Fail(ctx, fmt.Sprintf("no payment options offered for %s", np.Product), x402.PaymentContext{})
	}

	required := &x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Accepts:     g.enricher.Enrich(ctx, np.Requirements),
	}
	cheapest := required.Cheapest()
	text := fmt.Sprintf("Payment of %s %s is required for %s.", cheapest.Amount, cheapest.TokenName(), np.Product)

	observability.GetGlobalMetrics().RecordPayment(ctx, observability.StageChallenge, observability.OutcomeOK)
	slog.Info("Payment required", "taskID", updater.TaskID(), "product", np.Product, "options", len(required.Accepts))

	return updater.RequirePayment(ctx, text, x402.PaymentContext{
		Status:   x402.StatusRequired,
		Required: required,
		Product:  np.Product,
	})
}

// ensureFinished completes a task the business logic left open.
func (g *Gate) ensureFinished(ctx context.Context, updater *Updater) error {
	t, err := g.registry.Get(ctx, updater.TaskID())
	if err != nil {
		return err
	}
	if t.Status.State.IsTerminal() || t.Status.State == task.StateInputRequired {
		return nil
	}
	return updater.Complete(ctx)
}

func (g *Gate) fail(ctx context.Context, updater *Updater, reason string) error {
	return updater.Fail(ctx, reason, x402.PaymentContext{Status: x402.StatusFailed, Error: reason})
}

// Cancel implements a2asrv.AgentExecutor. Paid work cannot be aborted.
func (g *Gate) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return a2a.ErrUnsupportedOperation
}

var _ a2asrv.AgentExecutor = (*Gate)(nil)
