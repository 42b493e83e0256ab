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
	"log/slog"
	"time"

	"github.com/kadirpekel/paygate/pkg/observability"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// FeeQuoter returns facilitator fees for payment options.
type FeeQuoter interface {
	QuoteFees(ctx context.Context, reqs []x402.PaymentRequirements) ([]x402.FeeQuote, error)
}

// FeeEnricher attaches facilitator fees to payment options before they are
// offered. It never fails: without quotes the options pass through as is.
type FeeEnricher struct {
	quoter  FeeQuoter
	timeout time.Duration
}

// NewFeeEnricher creates an enricher. A zero timeout leaves the deadline to ctx.
func NewFeeEnricher(quoter FeeQuoter, timeout time.Duration) *FeeEnricher {
	return &FeeEnricher{quoter: quoter, timeout: timeout}
}

// Enrich returns new options with Extra.Fee set wherever a quote matches
// (network, scheme, asset). The input slice is not modified.
func (e *FeeEnricher) Enrich(ctx context.Context, reqs []x402.PaymentRequirements) []x402.PaymentRequirements {
	out := append([]x402.PaymentRequirements(nil), reqs...)
	if e == nil || e.quoter == nil || len(reqs) == 0 {
		return out
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanFeeQuote)
	quotes, err := e.quoter.QuoteFees(ctx, reqs)
	observability.EndSpan(span, err)
	if err != nil {
		slog.Warn("Fee quote failed, offering options without fees", "error", err)
		observability.GetGlobalMetrics().RecordPayment(ctx, observability.StageQuote, observability.OutcomeError)
		return out
	}
	observability.GetGlobalMetrics().RecordPayment(ctx, observability.StageQuote, observability.OutcomeOK)

	byKey := make(map[x402.QuoteKey]x402.FeeInfo, len(quotes))
	for _, q := range quotes {
		byKey[q.Key()] = q.Fee
	}

	for i, r := range out {
		fee, ok := byKey[r.Key()]
		if !ok {
			slog.Warn("No fee quote for payment option",
				"network", r.Network, "scheme", r.Scheme, "asset", r.Asset)
			continue
		}
		out[i] = r.WithFee(fee)
	}
	return out
}
