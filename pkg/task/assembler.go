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
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
)

// Assembler reassembles artifacts that arrive in chunks.
//
// At most one artifact per artifact ID is in progress. Assembler is not safe
// for concurrent use; the registry serializes access per task.
type Assembler struct {
	pending map[a2a.ArtifactID]*a2a.Artifact
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{pending: make(map[a2a.ArtifactID]*a2a.Artifact)}
}

// Add folds one artifact event into the buffer. It returns the finalized
// artifact when the event completes one, or nil otherwise.
//
// A nil lastChunk means the sender did not say, which for a fresh artifact is
// treated as complete.
func (a *Assembler) Add(artifact *a2a.Artifact, appendParts bool, lastChunk *bool) *a2a.Artifact {
	if artifact == nil {
		return nil
	}
	id := artifact.ID

	if !appendParts {
		if lastChunk == nil || *lastChunk {
			return cloneArtifact(artifact)
		}
		if _, open := a.pending[id]; open {
			slog.Debug("Replacing unfinished artifact", "artifactID", id)
		}
		a.pending[id] = cloneArtifact(artifact)
		return nil
	}

	buf, ok := a.pending[id]
	if !ok {
		slog.Debug("Dropping append chunk without a started artifact", "artifactID", id)
		return nil
	}
	buf.Parts = append(buf.Parts, artifact.Parts...)
	if lastChunk != nil && *lastChunk {
		delete(a.pending, id)
		return buf
	}
	return nil
}

// Pending returns the number of artifacts still being assembled.
func (a *Assembler) Pending() int {
	return len(a.pending)
}

// Discard drops every unfinished artifact.
func (a *Assembler) Discard() {
	clear(a.pending)
}
