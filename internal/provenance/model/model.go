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

// Package model defines the provenance data model: File, Process, IOInterval
// and ForkEdge, along with the stable cross-host identifiers the store keys
// them by. All timestamps are real-valued seconds since the epoch of the
// recording host.
package model

import "fmt"

// Direction distinguishes a read IO interval from a write one.
type Direction string

const (
	Read  Direction = "read"
	Write Direction = "write"
)

// FileID is the tuple (hostname, device id, inode) rendered as a stable
// string. Display identity — the absolute real path at the moment of
// recording — is carried separately on File, since it can change (rename)
// without changing essential identity.
type FileID string

// NewFileID builds the canonical identifier for a file.
func NewFileID(hostname string, dev, inode uint64) FileID {
	return FileID(fmt.Sprintf("%s|%d|%d", hostname, dev, inode))
}

// ProcessID is the tuple (hostname, start-time, PID) rendered as a stable
// string.
type ProcessID string

// NewProcessID builds the canonical identifier for a process. start is
// seconds since the epoch, matching the real-valued timestamp convention
// used throughout the data model.
func NewProcessID(hostname string, start float64, pid int) ProcessID {
	return ProcessID(fmt.Sprintf("%s|%.6f|%d", hostname, start, pid))
}

// IOIntervalID is (processID, fileID, direction, open-sequence) rendered as
// a stable string.
type IOIntervalID string

// NewIOIntervalID builds the canonical identifier for an IO interval.
func NewIOIntervalID(p ProcessID, f FileID, dir Direction, seq uint64) IOIntervalID {
	return IOIntervalID(fmt.Sprintf("%s|%s|%s|%d", p, f, dir, seq))
}

// File is a recorded filesystem object. Essential identity never changes;
// display identity (Path) may be updated by Rename. Records are never
// destroyed. FileID is derived from the (hostname, dev, inode) tuple alone,
// so a file that reuses an inode maps to the existing record: no separate
// File is created for it.
type File struct {
	ID FileID

	// Display identity: the absolute real path at the moment of recording.
	Path string

	// Hash is the content hash (SHA-256, hex-encoded) computed on
	// close-after-write. Empty if the file has never been observed closed
	// after a write.
	Hash string

	// Size in bytes as of the last close-after-write.
	Size int64

	// Mtime is the modification time at last close-after-write.
	Mtime float64

	// IsVDF marks a virtual dynamic file leaf rather than a real path.
	IsVDF bool

	// UnlinkedAt is non-nil if the path was unlinked; the File record is
	// kept regardless, per spec: files are never destroyed from the store.
	UnlinkedAt *float64

	// EscapedAt is non-nil if a rename moved this file's path outside of
	// the mount. Decision recorded in DESIGN.md: keep the record rather
	// than deleting it.
	EscapedAt *float64
}

// Process is a recorded invocation. Materialized on first IO observed for a
// PID; updated exactly once with a terminal ExitStatus.
type Process struct {
	ID ProcessID

	Hostname string
	Start    float64
	PID      int

	// ParentID is the identity of the parent process, or empty if unknown
	// or the parent predates tracking.
	ParentID ProcessID

	Exe     string
	ExeHash string
	Argv    []string

	// Env is captured at first observation (see DESIGN.md Open Question
	// #1), not at spawn time — the introspector cannot see spawn-time env
	// after the fact, only what is readable when first observed.
	Env []string
	Cwd string

	// ExitStatus is nil until the process is observed to exit.
	ExitStatus *int
}

// IOInterval is one process's open/read-or-write/close span on one file.
type IOInterval struct {
	ID IOIntervalID

	ProcessID ProcessID
	FileID    FileID
	Direction Direction
	Seq       uint64

	OpenTime  float64
	CloseTime float64
	Bytes     int64

	// Truncated is set if close was not observed before unmount; CloseTime
	// is then the unmount time, per spec invariant.
	Truncated bool
}

// ForkEdge records a parent/child process relationship. Materialized
// lazily when a child's first IO names a parent whose identity is already
// in the store; otherwise recovered at graph-query time from Process
// ParentID fields.
type ForkEdge struct {
	ParentID ProcessID
	ChildID  ProcessID
}
