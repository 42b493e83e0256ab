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
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/x402"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStoreRoundTrip(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	tk := New("T1", "C1")
	tk.Status = Status{
		State:   StateInputRequired,
		Message: a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "Payment of 100 USDT is required"}),
	}
	tk.Artifacts = append(tk.Artifacts, textArtifact("A", "hello"))
	tk.Payment = x402.PaymentContext{
		Status:  x402.StatusRequired,
		Product: "banana",
		Required: &x402.PaymentRequired{X402Version: 1, Accepts: []x402.PaymentRequirements{{
			Scheme: "exact", Network: "base", Amount: "100", Asset: "USDC", PayTo: "0xabc", MaxTimeoutSeconds: 60,
		}}},
	}
	tk.Metadata["user_id"] = "u1"

	require.NoError(t, s.Save(ctx, tk))

	got, err := s.Load(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "C1", got.ContextID)
	assert.Equal(t, StateInputRequired, got.Status.State)
	require.NotNil(t, got.Status.Message)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, []string{"hello"}, partTexts(got.Artifacts[0]))
	assert.Equal(t, "banana", got.Payment.Product)
	require.NotNil(t, got.Payment.Required)
	assert.Equal(t, 60, got.Payment.Required.Accepts[0].MaxTimeoutSeconds)
	assert.Equal(t, "u1", got.Metadata["user_id"])
}

func TestSQLStoreUpsert(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	tk := New("T1", "C1")
	require.NoError(t, s.Save(ctx, tk))
	tk.Status.State = StateCompleted
	require.NoError(t, s.Save(ctx, tk))

	got, err := s.Load(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.Status.State)

	list, err := s.ListByContext(ctx, "C1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLStoreMissing(t *testing.T) {
	s := newTestSQLStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSQLStoreRejectsUnknownDialect(t *testing.T) {
	_, err := NewSQLStore(nil, "sqlite")
	assert.Error(t, err)
	_, err = OpenSQLStore("oracle", "x")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	s := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))
	s.dialect = "mysql"
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}
