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

// Package repeatfserr defines the error taxonomy every engine component
// returns. Kinds, not instances: callers compare with errors.Is against the
// sentinels below, and wrap them with fmt.Errorf("...: %w", ...) for detail.
package repeatfserr

import "errors"

var (
	// NotFound means a virtual path does not resolve to anything: not a
	// real file, not a synthetic "+" directory, not a VDF leaf.
	NotFound = errors.New("not found")

	// PermissionDenied means the backing filesystem refused an operation.
	PermissionDenied = errors.New("permission denied")

	// IoError means the backing filesystem or a derivation command failed
	// at runtime.
	IoError = errors.New("io error")

	// VdfChainTooDeep means the VDF resolver exceeded its configured
	// chain-depth bound while resolving a chained VDF path.
	VdfChainTooDeep = errors.New("vdf chain too deep")

	// StoreUnavailable means the provenance store is unreachable. It is
	// non-fatal for filesystem operations: the tracker degrades instead of
	// blocking the caller.
	StoreUnavailable = errors.New("provenance store unavailable")

	// VersionMismatch means a replication verification step found a
	// discrepancy. The replicator raises it when a re-executed program's
	// executable hash differs from the recorded one; exit status is not
	// compared, and the argument vector is the recorded one by construction.
	// It is non-fatal: the replicator reports it as a warning, and no mode
	// makes it abort the run.
	VersionMismatch = errors.New("version mismatch")

	// ProcessFailed means a replication step could not execute at all.
	// Fatal for that schedule.
	ProcessFailed = errors.New("process failed")

	// ScheduleCyclic means the replicator's topological sort found a
	// cycle. This should never happen — IO happens-before induces a DAG —
	// so its presence signals corrupted provenance.
	ScheduleCyclic = errors.New("schedule is cyclic")
)
