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

package facilitator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/paygate/pkg/payment"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// DefaultSettleCacheTTL is how long a successful settlement is remembered.
const DefaultSettleCacheTTL = 10 * time.Minute

// IdempotentProcessor makes Settle safe to repeat. Concurrent settles of the
// same payload share one call, and a successful settlement is replayed from
// cache until the TTL passes. Failures are never cached.
type IdempotentProcessor struct {
	next payment.Processor
	ttl  time.Duration
	now  func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	settled map[string]cachedSettle
}

type cachedSettle struct {
	resp    x402.SettleResponse
	expires time.Time
}

// NewIdempotentProcessor wraps next. A non-positive ttl uses DefaultSettleCacheTTL.
func NewIdempotentProcessor(next payment.Processor, ttl time.Duration) *IdempotentProcessor {
	if ttl <= 0 {
		ttl = DefaultSettleCacheTTL
	}
	return &IdempotentProcessor{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		settled: make(map[string]cachedSettle),
	}
}

// Verify passes through.
func (p *IdempotentProcessor) Verify(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	return p.next.Verify(ctx, payload, req)
}

// Settle settles payload at most once per TTL.
func (p *IdempotentProcessor) Settle(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (*x402.SettleResponse, error) {
	key, err := settleKey(payload, req)
	if err != nil {
		return nil, err
	}
	if cached, ok := p.lookup(key); ok {
		slog.Debug("Replaying cached settlement", "transaction", cached.Transaction)
		return &cached, nil
	}

	v, err, shared := p.group.Do(key, func() (any, error) {
		if cached, ok := p.lookup(key); ok {
			return &cached, nil
		}
		resp, err := p.next.Settle(ctx, payload, req)
		if err != nil {
			return nil, err
		}
		if resp.Success {
			p.store(key, *resp)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Joined in-flight settlement", "network", req.Network)
	}
	out := *v.(*x402.SettleResponse)
	return &out, nil
}

func (p *IdempotentProcessor) lookup(key string) (x402.SettleResponse, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.settled[key]
	if !ok {
		return x402.SettleResponse{}, false
	}
	if p.now().After(c.expires) {
		delete(p.settled, key)
		return x402.SettleResponse{}, false
	}
	return c.resp, true
}

func (p *IdempotentProcessor) store(key string, resp x402.SettleResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for k, c := range p.settled {
		if now.After(c.expires) {
			delete(p.settled, k)
		}
	}
	p.settled[key] = cachedSettle{resp: resp, expires: now.Add(p.ttl)}
}

func settleKey(payload *x402.PaymentPayload, req x402.PaymentRequirements) (string, error) {
	data, err := json.Marshal(struct {
		Payload *x402.PaymentPayload     `json:"p"`
		Req     x402.PaymentRequirements `json:"r"`
	}{payload, req})
	if err != nil {
		return "", fmt.Errorf("failed to hash payment: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

var _ payment.Processor = (*IdempotentProcessor)(nil)
