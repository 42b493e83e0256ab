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
	"errors"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/task"
	"github.com/kadirpekel/paygate/pkg/x402"
)

func TestEnrichAttachesMatchingFees(t *testing.T) {
	nile := bananaOption("tron:nile", "100")
	other := bananaOption("tron:nile", "100")
	other.Asset = "TOTHER"

	quoter := &fakeQuoter{quotes: []x402.FeeQuote{{
		Network: "tron:nile", Scheme: x402.SchemeExactPermit, Asset: "TUSDT",
		Fee: x402.FeeInfo{FeeTo: "TFacilitator", FeeAmount: "3"},
	}}}
	in := []x402.PaymentRequirements{nile, other}
	out := NewFeeEnricher(quoter, time.Second).Enrich(context.Background(), in)

	require.Len(t, out, 2)
	require.NotNil(t, out[0].Extra.Fee)
	assert.Equal(t, "TFacilitator", out[0].Extra.Fee.FeeTo)
	assert.Equal(t, "USDT", out[0].Extra.Name)
	assert.Nil(t, out[1].Extra.Fee)
	assert.Nil(t, in[0].Extra.Fee, "input must not be modified")
}

func TestEnrichFailsOpen(t *testing.T) {
	in := []x402.PaymentRequirements{bananaOption("tron:nile", "100")}
	out := NewFeeEnricher(&fakeQuoter{err: errors.New("boom")}, 0).Enrich(context.Background(), in)
	assert.Equal(t, in, out)
}

func TestEnrichTimesOut(t *testing.T) {
	in := []x402.PaymentRequirements{bananaOption("tron:nile", "100")}
	start := time.Now()
	out := NewFeeEnricher(stallingQuoter{}, 10*time.Millisecond).Enrich(context.Background(), in)
	assert.Equal(t, in, out)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEnrichWithoutQuoter(t *testing.T) {
	in := []x402.PaymentRequirements{bananaOption("tron:nile", "100")}

	var nilEnricher *FeeEnricher
	assert.Equal(t, in, nilEnricher.Enrich(context.Background(), in))
	assert.Equal(t, in, NewFeeEnricher(nil, 0).Enrich(context.Background(), in))
}

func TestEnrichSkipsQuoterForNoOptions(t *testing.T) {
	quoter := &fakeQuoter{}
	out := NewFeeEnricher(quoter, 0).Enrich(context.Background(), nil)
	assert.Empty(t, out)
	assert.Equal(t, 0, quoter.calls)
}

func TestUpdaterAppliesBeforeQueueing(t *testing.T) {
	reg := task.NewRegistry()
	q := &recordingQueue{}
	u := NewUpdater(reg, q, newRequest("t1", nil))
	ctx := context.Background()

	require.NoError(t, u.Submit(ctx))
	require.NoError(t, u.Working(ctx, "thinking"))
	require.NoError(t, u.AddArtifact(ctx, a2a.TextPart{Text: "result"}))
	require.NoError(t, u.Complete(ctx))

	got, err := reg.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, got.Status.State)
	assert.Equal(t, "ctx-1", got.ContextID)
	assert.Equal(t, []string{"result"}, got.ArtifactTexts())

	require.Len(t, q.events, 4)
	art, ok := q.events[2].(*a2a.TaskArtifactUpdateEvent)
	require.True(t, ok)
	assert.True(t, art.LastChunk)

	statuses := q.statuses()
	assert.False(t, statuses[1].Final)
	assert.True(t, statuses[2].Final)
}

func TestUpdaterPaymentMetadata(t *testing.T) {
	reg := task.NewRegistry()
	q := &recordingQueue{}
	u := NewUpdater(reg, q, newRequest("t1", nil))
	ctx := context.Background()

	pc := x402.PaymentContext{Status: x402.StatusFailed, Error: "expired"}
	require.NoError(t, u.Fail(ctx, "expired", pc))

	ev := q.statuses()[0]
	assert.Equal(t, "expired", ev.Metadata[x402.MetaKeyError])
	require.NotNil(t, ev.Status.Message)
	assert.Equal(t, "expired", ev.Status.Message.Metadata[x402.MetaKeyError])

	got, err := reg.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, x402.StatusFailed, got.Payment.Status)
}
