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

//go:build !linux

package procinfo

import (
	"context"

	"github.com/toniwestbrook/repeatfs/clock"
)

// DegradedIntrospector is used on hosts with no kernel-exposed process
// information available to this build. Every snapshot is degraded, per
// spec §4.2, which puts the Tracker into VDF-only mode: no provenance
// writes, but the synthetic namespace still works.
type DegradedIntrospector struct {
	clock clock.Clock
}

// New creates the degraded-mode Introspector for this platform.
func New(c clock.Clock) (*DegradedIntrospector, error) {
	return &DegradedIntrospector{clock: c}, nil
}

// Snapshot implements Introspector.
func (d *DegradedIntrospector) Snapshot(ctx context.Context, pid int) (Snapshot, error) {
	return Snapshot{
		PID:        pid,
		ObservedAt: float64(d.clock.Now().UnixNano()) / 1e9,
		Degraded:   true,
	}, nil
}
