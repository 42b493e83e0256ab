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

	"github.com/kadirpekel/paygate/pkg/x402"
)

// Processor verifies and settles signed payments, usually by calling a
// facilitator. An error means the processor could not answer; a negative
// answer is reported in the response.
type Processor interface {
	Verify(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error)
	Settle(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (*x402.SettleResponse, error)
}

var (
	// ErrNoPaymentChallenge is returned when a payment arrives for a task
	// that never asked for one.
	ErrNoPaymentChallenge = errors.New("payment submitted but no payment challenge is recorded for the task")

	// ErrNoMatchingRequirement is returned when a payload matches none of
	// the offered options.
	ErrNoMatchingRequirement = errors.New("payment payload matches no offered payment option")

	// ErrInvalidSubmission is returned when the payment metadata of a
	// message cannot be decoded.
	ErrInvalidSubmission = errors.New("invalid payment submission")
)
