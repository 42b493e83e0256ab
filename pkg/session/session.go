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

// Package session keeps conversation history and tool state per A2A
// context, so a run suspended for payment can resume where it stopped.
//
// Each session has:
//   - A unique identifier (the A2A context ID)
//   - Associated app name
//   - State (key-value store visible to tools, with scope prefixes)
//   - Conversation history
package session

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/tool"
)

// Session is one conversation between a requester and an agent.
type Session interface {
	// ID returns the unique session identifier.
	ID() string

	// AppName returns the application name.
	AppName() string

	// State returns the session state store.
	State() tool.State

	// History returns a copy of the conversation turns.
	History() []*model.Content

	// Append adds turns to the history.
	Append(contents ...*model.Content)

	// LastUpdateTime returns when the session was last modified.
	LastUpdateTime() time.Time
}

// Service manages session lifecycle.
type Service interface {
	// GetOrCreate returns the session with the given ID, creating it if needed.
	// An empty ID creates a fresh session.
	GetOrCreate(ctx context.Context, appName, sessionID string) (Session, error)

	// Get retrieves an existing session.
	Get(ctx context.Context, appName, sessionID string) (Session, error)

	// List returns the sessions of an app.
	List(ctx context.Context, appName string) ([]Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, appName, sessionID string) error
}

// State prefixes for scoping state keys.
const (
	// KeyPrefixApp is for app-level state (shared across sessions).
	KeyPrefixApp = "app:"

	// KeyPrefixTemp is for temporary state (discarded after a run).
	KeyPrefixTemp = "temp:"
)

// ErrSessionNotFound is returned when a session doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// memorySession is an in-memory Session implementation.
type memorySession struct {
	id             string
	appName        string
	state          *memoryState
	history        []*model.Content
	lastUpdateTime time.Time
	mu             sync.RWMutex
}

func (s *memorySession) ID() string        { return s.id }
func (s *memorySession) AppName() string   { return s.appName }
func (s *memorySession) State() tool.State { return s.state }

func (s *memorySession) History() []*model.Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.Content(nil), s.history...)
}

func (s *memorySession) Append(contents ...*model.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contents {
		if c != nil {
			s.history = append(s.history, c)
		}
	}
	s.lastUpdateTime = time.Now()
}

func (s *memorySession) LastUpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateTime
}

// memoryState is an in-memory tool.State implementation.
type memoryState struct {
	data map[string]any
	mu   sync.RWMutex
}

func newMemoryState() *memoryState {
	return &memoryState{data: make(map[string]any)}
}

func (s *memoryState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

func (s *memoryState) Set(key string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
}

func (s *memoryState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// All iterates over a snapshot of the state.
func (s *memoryState) All() iter.Seq2[string, any] {
	s.mu.RLock()
	snapshot := make(map[string]any, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.RUnlock()
	return func(yield func(string, any) bool) {
		for k, v := range snapshot {
			if !yield(k, v) {
				return
			}
		}
	}
}

// ClearTempKeys removes all keys with the temp: prefix.
func ClearTempKeys(state tool.State) {
	ms, ok := state.(*memoryState)
	if !ok {
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for key := range ms.data {
		if strings.HasPrefix(key, KeyPrefixTemp) {
			delete(ms.data, key)
		}
	}
}

// InMemoryService returns an in-memory session service.
func InMemoryService() Service {
	return &inMemoryService{sessions: make(map[string]*memorySession)}
}

type inMemoryService struct {
	sessions map[string]*memorySession
	mu       sync.RWMutex
}

func sessionKey(appName, sessionID string) string {
	return appName + ":" + sessionID
}

func (s *inMemoryService) GetOrCreate(_ context.Context, appName, sessionID string) (Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	key := sessionKey(appName, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}
	sess := &memorySession{
		id:             sessionID,
		appName:        appName,
		state:          newMemoryState(),
		lastUpdateTime: time.Now(),
	}
	s.sessions[key] = sess
	return sess, nil
}

func (s *inMemoryService) Get(_ context.Context, appName, sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey(appName, sessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *inMemoryService) List(_ context.Context, appName string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := appName + ":"
	var out []Session
	for key, sess := range s.sessions {
		if strings.HasPrefix(key, prefix) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *inMemoryService) Delete(_ context.Context, appName, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(appName, sessionID))
	return nil
}

var (
	_ Session    = (*memorySession)(nil)
	_ tool.State = (*memoryState)(nil)
	_ Service    = (*inMemoryService)(nil)
)
