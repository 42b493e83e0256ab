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

package httpclient

import (
	"fmt"
	"time"
)

// ExhaustedError is returned when a retryable status persisted through every
// attempt.
type ExhaustedError struct {
	StatusCode int
	Attempts   int

	// RetryAfter is the wait the server asked for last, if any.
	RetryAfter time.Duration
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("HTTP %d after %d attempts", e.StatusCode, e.Attempts)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %v)", e.RetryAfter)
	}
	return msg
}
