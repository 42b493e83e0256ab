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
	"net/http"
	"strconv"
	"time"
)

// RetryKind says how a response status is retried.
type RetryKind int

const (
	NoRetry RetryKind = iota

	// RetryThrottled follows Retry-After, else backs off exponentially.
	RetryThrottled

	// RetryGateway retries a couple of times with a short linear delay.
	RetryGateway
)

func (k RetryKind) String() string {
	switch k {
	case RetryThrottled:
		return "throttled"
	case RetryGateway:
		return "gateway"
	default:
		return "none"
	}
}

// Classify maps a status code to its retry kind. 500 is not retried: a
// facilitator that failed internally may already have acted on the request.
func Classify(status int) RetryKind {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return RetryThrottled
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusGatewayTimeout:
		return RetryGateway
	default:
		return NoRetry
	}
}

// RetryAfter reads the Retry-After header, in seconds or as an HTTP date.
func RetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
