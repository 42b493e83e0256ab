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

// Package remoteagent connects to agents served over A2A.
//
// A Connection resolves the remote agent card once and sends messages with
// the transport the card advertises. Every task event received is handed to
// a callback, typically a task registry, so the caller holds the
// reassembled task when Send returns.
//
// # Basic Usage
//
//	conn, _ := remoteagent.Dial(ctx, remoteagent.Config{URL: "http://localhost:8080"})
//	res, _ := conn.Send(ctx, msg, func(ctx context.Context, ev a2a.Event) error {
//	    _, err := registry.ApplyEvent(ctx, ev)
//	    return err
//	})
//
// # With Agent Card
//
// Provide an agent card directly or load it from a file:
//
//	conn, _ := remoteagent.Dial(ctx, remoteagent.Config{AgentCardSource: "./merchant-card.json"})
package remoteagent
