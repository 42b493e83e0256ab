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

package observability

const (
	AttrToolName       = "tool.name"
	AttrLLMModel       = "llm.model"
	AttrTaskID         = "task.id"
	AttrTaskState      = "task.state"
	AttrPaymentStage   = "payment.stage"
	AttrPaymentOutcome = "payment.outcome"
	AttrPaymentNetwork = "payment.network"
	AttrErrorType      = "error.type"
	AttrCaller         = "auth.subject"
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"

	SpanGateExecute   = "payment.gate.execute"
	SpanVerify        = "payment.verify"
	SpanSettle        = "payment.settle"
	SpanFeeQuote      = "payment.fee_quote"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanHTTPRequest   = "http.request"

	DefaultServiceName  = "paygate"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"

	instrumentationName = "github.com/kadirpekel/paygate"
)

// Payment stages reported by RecordPayment.
const (
	StageChallenge = "challenge"
	StageQuote     = "quote"
	StageVerify    = "verify"
	StageSettle    = "settle"
)

// Payment outcomes reported by RecordPayment.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)
