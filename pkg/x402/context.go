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

package x402

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// PaymentContext is the typed view of the payment fields of a task.
type PaymentContext struct {
	Status   PaymentStatus
	Required *PaymentRequired
	Payload  *PaymentPayload
	Receipts []SettleResponse
	Error    string
	Product  string
}

// IsZero reports whether no payment field is set.
func (c PaymentContext) IsZero() bool {
	return c.Status == "" && c.Required == nil && c.Payload == nil &&
		len(c.Receipts) == 0 && c.Error == "" && c.Product == ""
}

// Clone returns a deep copy.
func (c PaymentContext) Clone() PaymentContext {
	out := c
	if c.Required != nil {
		req := *c.Required
		req.Accepts = append([]PaymentRequirements(nil), c.Required.Accepts...)
		out.Required = &req
	}
	if c.Payload != nil {
		p := *c.Payload
		if c.Payload.Payload != nil {
			p.Payload = make(map[string]any, len(c.Payload.Payload))
			for k, v := range c.Payload.Payload {
				p.Payload[k] = v
			}
		}
		out.Payload = &p
	}
	out.Receipts = append([]SettleResponse(nil), c.Receipts...)
	return out
}

// Merge overlays the set fields of other onto c.
func (c *PaymentContext) Merge(other PaymentContext) {
	if other.Status != "" {
		c.Status = other.Status
	}
	if other.Required != nil {
		c.Required = other.Required
	}
	if other.Payload != nil {
		c.Payload = other.Payload
	}
	if len(other.Receipts) > 0 {
		c.Receipts = other.Receipts
	}
	if other.Error != "" {
		c.Error = other.Error
	}
	if other.Product != "" {
		c.Product = other.Product
	}
}

// LatestReceipt returns the most recent settlement, if any.
func (c PaymentContext) LatestReceipt() *SettleResponse {
	if len(c.Receipts) == 0 {
		return nil
	}
	r := c.Receipts[len(c.Receipts)-1]
	return &r
}

// Metadata encodes the set fields under the shared metadata keys. Values are
// plain JSON shapes so they survive any transport unchanged.
func (c PaymentContext) Metadata() (map[string]any, error) {
	md := make(map[string]any)
	if c.Status != "" {
		md[MetaKeyStatus] = string(c.Status)
	}
	if c.Error != "" {
		md[MetaKeyError] = c.Error
	}
	if c.Product != "" {
		md[MetaKeyProduct] = c.Product
	}
	for key, v := range map[string]any{
		MetaKeyRequired: c.Required,
		MetaKeyPayload:  c.Payload,
	} {
		if isNilPtr(v) {
			continue
		}
		encoded, err := toJSONValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		md[key] = encoded
	}
	if len(c.Receipts) > 0 {
		encoded, err := toJSONValue(c.Receipts)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", MetaKeyReceipts, err)
		}
		md[MetaKeyReceipts] = encoded
	}
	return md, nil
}

// FromMetadata decodes the payment fields found in md. Keys that are absent
// leave the corresponding field zero.
func FromMetadata(md map[string]any) (PaymentContext, error) {
	var c PaymentContext
	if len(md) == 0 {
		return c, nil
	}
	if v, ok := md[MetaKeyStatus]; ok {
		s, ok := v.(string)
		if !ok || !PaymentStatus(s).Valid() {
			return c, fmt.Errorf("invalid %s: %v", MetaKeyStatus, v)
		}
		c.Status = PaymentStatus(s)
	}
	if v, ok := md[MetaKeyError].(string); ok {
		c.Error = v
	}
	if v, ok := md[MetaKeyProduct].(string); ok {
		c.Product = v
	}
	if v, ok := md[MetaKeyRequired]; ok && v != nil {
		var req PaymentRequired
		if err := decode(v, &req); err != nil {
			return c, fmt.Errorf("decode %s: %w", MetaKeyRequired, err)
		}
		c.Required = &req
	}
	if v, ok := md[MetaKeyPayload]; ok && v != nil {
		var p PaymentPayload
		if err := decode(v, &p); err != nil {
			return c, fmt.Errorf("decode %s: %w", MetaKeyPayload, err)
		}
		c.Payload = &p
	}
	if v, ok := md[MetaKeyReceipts]; ok && v != nil {
		if err := decode(v, &c.Receipts); err != nil {
			return c, fmt.Errorf("decode %s: %w", MetaKeyReceipts, err)
		}
	}
	return c, nil
}

// StripMetadata returns md without the payment keys.
func StripMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		if strings.HasPrefix(k, "x402.payment.") {
			continue
		}
		out[k] = v
	}
	return out
}

// HasPaymentKeys reports whether md carries any payment key.
func HasPaymentKeys(md map[string]any) bool {
	for k := range md {
		if strings.HasPrefix(k, "x402.payment.") {
			return true
		}
	}
	return false
}

// SubmittedPayload extracts the payload of a resume message. It returns nil
// without error when the message is not a payment submission.
func SubmittedPayload(md map[string]any) (*PaymentPayload, error) {
	if md[MetaKeyStatus] != string(StatusSubmitted) {
		return nil, nil
	}
	c, err := FromMetadata(md)
	if err != nil {
		return nil, err
	}
	if c.Payload == nil {
		return nil, fmt.Errorf("%s is %s but %s is missing", MetaKeyStatus, StatusSubmitted, MetaKeyPayload)
	}
	return c.Payload, nil
}

func decode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isNilPtr(v any) bool {
	switch p := v.(type) {
	case *PaymentRequired:
		return p == nil
	case *PaymentPayload:
		return p == nil
	}
	return v == nil
}
