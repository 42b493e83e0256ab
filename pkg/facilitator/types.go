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

// Package facilitator talks to an x402 facilitator, the service that quotes
// fees for, verifies and settles signed payments.
//
// Client is the HTTP client used by merchants. Server is a self-contained
// facilitator for local development that checks wallet permits and settles
// them in memory.
package facilitator

import (
	"errors"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// Endpoint paths.
const (
	PathQuote     = "/fee/quote"
	PathVerify    = "/verify"
	PathSettle    = "/settle"
	PathSupported = "/supported"
)

// ErrUnavailable wraps every failure to get an answer from the facilitator.
var ErrUnavailable = errors.New("facilitator unavailable")

// QuoteRequest asks for the fees of a set of options.
type QuoteRequest struct {
	PaymentRequirements []x402.PaymentRequirements `json:"paymentRequirements"`
}

// QuoteResponse lists one quote per supported (network, scheme, asset).
type QuoteResponse struct {
	Quotes []x402.FeeQuote `json:"quotes"`
}

// PaymentRequest is the body of verify and settle calls.
type PaymentRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      *x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// SupportedKind is one (scheme, network) the facilitator handles.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse lists what the facilitator handles.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

type errorResponse struct {
	Error string `json:"error"`
}
