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

// Package x402 defines the payment challenge exchanged in-band over A2A tasks.
//
// A provider that needs payment suspends a task in the input_required state and
// records a PaymentRequired challenge in the task metadata. The requester signs
// one of the offered PaymentRequirements and resends the resulting
// PaymentPayload on the same task. Both sides read and write the shared
// metadata keys below through the typed PaymentContext.
package x402

// ProtocolVersion is the x402 protocol version carried in challenges and payloads.
const ProtocolVersion = 1

// ExtensionURI identifies the x402 A2A extension in agent cards.
const ExtensionURI = "https://github.com/google-a2a/a2a-x402/v0.1"

// Metadata keys shared by requester and provider.
const (
	MetaKeyStatus   = "x402.payment.status"
	MetaKeyRequired = "x402.payment.required"
	MetaKeyPayload  = "x402.payment.payload"
	MetaKeyReceipts = "x402.payment.receipts"
	MetaKeyError    = "x402.payment.error"

	// MetaKeyProduct is written by providers only. It names what is being paid for.
	MetaKeyProduct = "x402.payment.product"
)

// Schemes understood by the bundled wallet and facilitator.
const (
	SchemeExact       = "exact"
	SchemeExactPermit = "exact_permit"
)

// PaymentStatus tracks a payment through its lifecycle.
type PaymentStatus string

const (
	StatusRequired  PaymentStatus = "payment-required"
	StatusSubmitted PaymentStatus = "payment-submitted"
	StatusVerified  PaymentStatus = "payment-verified"
	StatusCompleted PaymentStatus = "payment-completed"
	StatusFailed    PaymentStatus = "payment-failed"
	StatusRejected  PaymentStatus = "payment-rejected"
)

// IsTerminal reports whether no further payment step can follow.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusRequired, StatusSubmitted, StatusVerified, StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}
