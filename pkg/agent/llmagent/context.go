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

package llmagent

import (
	"context"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/session"
)

// Emitter receives the visible output of a run.
type Emitter interface {
	// Working reports intermediate engine text while tool calls are pending.
	Working(ctx context.Context, text string) error

	// AddArtifact publishes one complete artifact.
	AddArtifact(ctx context.Context, parts ...a2a.Part) error

	// Complete ends the run successfully.
	Complete(ctx context.Context) error
}

// Run is one invocation of the loop.
type Run struct {
	// Session holds the history the engine sees and the tool state.
	Session session.Session

	// Input is appended to the history before the first round. It is nil
	// when the caller already appended the resume turns.
	Input *model.Content

	// Emitter receives artifacts and status updates.
	Emitter Emitter
}

// DiscardEmitter drops everything. Useful when only the Outcome matters.
type DiscardEmitter struct{}

func (DiscardEmitter) Working(context.Context, string) error          { return nil }
func (DiscardEmitter) AddArtifact(context.Context, ...a2a.Part) error { return nil }
func (DiscardEmitter) Complete(context.Context) error                 { return nil }

var _ Emitter = DiscardEmitter{}
