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

// Package procinfo implements the Process Introspector (component C2):
// given a caller PID, extract the process's executable, argument vector,
// environment, working directory, start time, parent PID/start time, and a
// content hash of the executable. Implementations are host-OS specific;
// on hosts where kernel-exposed process information is unavailable, a
// degraded snapshot is returned and the tracker runs in VDF-only mode.
package procinfo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Snapshot is a point-in-time view of a process, as seen by the
// introspector. Fields beyond PID/ObservedAt are zero-valued when Degraded
// is true.
type Snapshot struct {
	PID         int
	ObservedAt  float64
	Degraded    bool
	Exe         string
	ExeHash     string
	Argv        []string
	Env         []string
	Cwd         string
	Start       float64
	ParentPID   int
	ParentStart float64
}

// Introspector snapshots a running process given its PID.
type Introspector interface {
	// Snapshot returns what can currently be observed about pid. It never
	// returns an error for "process information unavailable" — that
	// condition is represented by Snapshot.Degraded, per spec §4.2, so
	// that the Tracker can still service VDFs in that mode. A non-nil
	// error means the PID itself could not be resolved to any process at
	// all (e.g. it has already exited and been reaped).
	Snapshot(ctx context.Context, pid int) (Snapshot, error)
}

// HashExecutable computes a streaming SHA-256 of the executable at path.
// It must be deterministic, and is expected to be called promptly after a
// process is first observed so the result survives the process exiting
// and its executable potentially changing on disk later.
func HashExecutable(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
