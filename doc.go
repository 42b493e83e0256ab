// Package paygate puts x402 payments in the middle of A2A agent
// conversations.
//
// A merchant agent answers a purchase request with an input-required task
// that carries payment requirements. The buyer signs one of the offered
// options and resubmits it on the same task; the merchant verifies and
// settles it through a facilitator and then finishes the job.
//
// # Quick Start
//
// Run a local facilitator and a merchant:
//
//	paygate facilitator -c paygate.yaml
//	paygate serve -c paygate.yaml
//
// with a config such as:
//
//	merchant:
//	  network: tron:nile
//	  asset: TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf
//	  pay_to: TMerchantAddress
//	  default_price: "100"
//	llm:
//	  api_key: ${GEMINI_API_KEY}
//
// Then shop from another terminal:
//
//	paygate buy -c paygate.yaml --remote shop=http://localhost:8080
//
// # Packages
//
//   - pkg/payment: the gate that turns a NeedsPayment outcome into a challenge
//     and settles the answer
//   - pkg/task: task registry, artifact assembly and snapshot stores
//   - pkg/x402: protocol types and typed payment metadata
//   - pkg/agent: merchant, buyer and the resumable tool loop they share
//   - pkg/facilitator: facilitator client and a local in-memory facilitator
//   - pkg/wallet: signing wallets
//   - pkg/server: the merchant's HTTP surface
package paygate
