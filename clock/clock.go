// Copyright 2026 The RepeatFS Authors
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

// Package clock provides an injectable notion of time, so that engine
// components (the provenance store, the process introspector, the VDF
// executor) can be driven by a fake clock in tests instead of wall time.
package clock

import "time"

// Clock is the dependency every timestamp-producing component takes
// instead of calling time.Now directly.
type Clock interface {
	// Now returns the current time according to the clock.
	Now() time.Time

	// After returns a channel that receives the time after the given
	// duration has elapsed, with semantics equivalent to time.After.
	After(d time.Duration) <-chan time.Time
}
