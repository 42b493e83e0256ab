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

// Errors
var (
	ErrTaskNotFound     = &TaskError{Code: "task_not_found", Message: "task not found"}
	ErrTaskTerminal     = &TaskError{Code: "task_terminal", Message: "task is in terminal state"}
	ErrUnsupportedEvent = &TaskError{Code: "unsupported_event", Message: "unsupported task event"}
)

// TaskError is a task-related error.
type TaskError struct {
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	return e.Message
}
