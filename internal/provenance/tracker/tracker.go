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

// Package tracker implements the Provenance Tracker (component C4): it
// correlates filesystem events delivered by the FUSE adapter with process
// identity from internal/procinfo and persists the result through
// internal/provenance/store.
//
// Per handle, events must arrive open, then zero or more read/write, then
// close — the adapter is responsible for that ordering; the Tracker does not
// check it, and read/write/close events on a handle with no open record are
// ignored. Read/write accumulation is purely
// in-memory (a byte counter guarded by the handle's own mutex) so the hot
// IO path never touches the store; only Open and Close commit.
package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/toniwestbrook/repeatfs/clock"
	"github.com/toniwestbrook/repeatfs/internal/procinfo"
	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
	"github.com/toniwestbrook/repeatfs/metrics"
)

// Handle identifies one open file descriptor as seen by the FUSE adapter.
// It is opaque to the Tracker; the adapter owns the numbering.
type Handle uint64

type handleState struct {
	mu sync.Mutex

	processID model.ProcessID
	fileID    model.FileID
	dir       model.Direction
	seq       uint64
	openTime  float64
	bytes     int64
	closed    bool
}

// Tracker correlates and persists provenance events.
//
// External synchronization is not required of callers beyond one rule:
// a given Handle must not be used concurrently from two goroutines without
// the adapter's own per-handle serialization, since Tracker itself only
// locks around the state of that one handle.
type Tracker struct {
	store    *store.Store
	intro    procinfo.Introspector
	clock    clock.Clock
	hostname string

	mu       sync.Mutex
	handles  map[Handle]*handleState
	procSeen map[model.ProcessID]bool
	seqByKey map[string]uint64

	metrics *metrics.Handle
}

// SetMetrics attaches a metrics Handle that store write failures on the
// close path report into. A nil handle (the default) disables reporting.
func (t *Tracker) SetMetrics(h *metrics.Handle) {
	t.metrics = h
}

// New creates a Tracker bound to s for persistence and intro for process
// identity resolution.
func New(s *store.Store, intro procinfo.Introspector, c clock.Clock, hostname string) *Tracker {
	return &Tracker{
		store:    s,
		intro:    intro,
		clock:    c,
		hostname: hostname,
		handles:  map[Handle]*handleState{},
		procSeen: map[model.ProcessID]bool{},
		seqByKey: map[string]uint64{},
	}
}

func (t *Tracker) now() float64 {
	return float64(t.clock.Now().UnixNano()) / 1e9
}

// EnsureProcess resolves pid to a stable ProcessID, materializing a Process
// record (and a ForkEdge to its parent, when the parent is already in the
// store) on first observation. It is
// idempotent and safe to call redundantly on every event.
func (t *Tracker) EnsureProcess(ctx context.Context, pid int) (model.ProcessID, error) {
	snap, err := t.intro.Snapshot(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("snapshotting pid %d: %w", pid, err)
	}

	start := snap.Start
	if snap.Degraded {
		// No reliable start time is available; fall back to the
		// observation time so the identifier is still stable across
		// repeated EnsureProcess calls within the same process lifetime,
		// as long as nothing else reuses the PID in between.
		start = snap.ObservedAt
	}
	id := model.NewProcessID(t.hostname, start, pid)

	t.mu.Lock()
	seen := t.procSeen[id]
	t.mu.Unlock()
	if seen {
		return id, nil
	}

	var parentID model.ProcessID
	if snap.ParentPID > 0 {
		parentID = model.NewProcessID(t.hostname, snap.ParentStart, snap.ParentPID)
	}

	proc := model.Process{
		ID:       id,
		Hostname: t.hostname,
		Start:    start,
		PID:      pid,
		ParentID: parentID,
		Exe:      snap.Exe,
		ExeHash:  snap.ExeHash,
		Argv:     snap.Argv,
		Env:      snap.Env,
		Cwd:      snap.Cwd,
	}
	if err := t.store.PutProcess(proc); err != nil {
		return "", err
	}

	if parentID != "" {
		if _, ok, err := t.store.GetProcess(parentID); err == nil && ok {
			if err := t.store.PutForkEdge(model.ForkEdge{ParentID: parentID, ChildID: id}); err != nil {
				return "", err
			}
		}
	}

	t.mu.Lock()
	t.procSeen[id] = true
	t.mu.Unlock()
	return id, nil
}

// RecordExit finalizes a process's terminal exit status.
func (t *Tracker) RecordExit(id model.ProcessID, status int) error {
	proc, ok, err := t.store.GetProcess(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s := status
	proc.ExitStatus = &s
	return t.store.PutProcess(proc)
}

// EnsureFile materializes a File record the first time a path's identity is
// observed, leaving an existing record untouched.
func (t *Tracker) EnsureFile(id model.FileID, path string) error {
	if _, ok, err := t.store.GetFile(id); err != nil {
		return err
	} else if ok {
		return nil
	}
	return t.store.PutFile(model.File{ID: id, Path: path})
}

// EnsureVDFFile is EnsureFile for a synthetic VDF leaf: the resulting File
// record carries IsVDF so exports and the replicator can tell it apart from
// a real path.
func (t *Tracker) EnsureVDFFile(id model.FileID, virtualPath string) error {
	if existing, ok, err := t.store.GetFile(id); err != nil {
		return err
	} else if ok {
		if existing.IsVDF {
			return nil
		}
		existing.IsVDF = true
		return t.store.PutFile(existing)
	}
	return t.store.PutFile(model.File{ID: id, Path: virtualPath, IsVDF: true})
}

// RecordOpen begins tracking handle, opened by process pid against file,
// for the given direction. It persists a provisional IOInterval immediately,
// so that a crash before Close still leaves a record Replicate can see.
// Such a record keeps a zero CloseTime and is not marked Truncated; only
// CloseUnmount marks handles still open at unmount as Truncated.
func (t *Tracker) RecordOpen(ctx context.Context, handle Handle, pid int, file model.FileID, path string, dir model.Direction) error {
	procID, err := t.EnsureProcess(ctx, pid)
	if err != nil {
		return err
	}
	if err := t.EnsureFile(file, path); err != nil {
		return err
	}

	key := string(procID) + "|" + string(file) + "|" + string(dir)
	t.mu.Lock()
	t.seqByKey[key]++
	seq := t.seqByKey[key]
	hs := &handleState{
		processID: procID,
		fileID:    file,
		dir:       dir,
		seq:       seq,
		openTime:  t.now(),
	}
	t.handles[handle] = hs
	t.mu.Unlock()

	return t.store.PutIOInterval(model.IOInterval{
		ID:        model.NewIOIntervalID(procID, file, dir, seq),
		ProcessID: procID,
		FileID:    file,
		Direction: dir,
		Seq:       seq,
		OpenTime:  hs.openTime,
	})
}

// RecordIO accumulates n bytes transferred on handle. This never touches the
// store; it is the hot path.
func (t *Tracker) RecordIO(handle Handle, n int64) {
	t.mu.Lock()
	hs := t.handles[handle]
	t.mu.Unlock()
	if hs == nil {
		return
	}
	hs.mu.Lock()
	hs.bytes += n
	hs.mu.Unlock()
}

// RecordClose finalizes handle: the accumulated byte count and close time
// are committed to the store in one IOInterval write. If dir was Write, the
// referenced File's content hash, size and mtime are refreshed from realPath.
func (t *Tracker) RecordClose(handle Handle, realPath string) error {
	t.mu.Lock()
	hs := t.handles[handle]
	delete(t.handles, handle)
	t.mu.Unlock()
	if hs == nil {
		return nil
	}
	return t.finalize(hs, realPath, false)
}

func (t *Tracker) finalize(hs *handleState, realPath string, truncated bool) error {
	hs.mu.Lock()
	if hs.closed {
		hs.mu.Unlock()
		return nil
	}
	hs.closed = true
	bytes := hs.bytes
	hs.mu.Unlock()

	closeTime := t.now()
	if err := t.store.PutIOInterval(model.IOInterval{
		ID:        model.NewIOIntervalID(hs.processID, hs.fileID, hs.dir, hs.seq),
		ProcessID: hs.processID,
		FileID:    hs.fileID,
		Direction: hs.dir,
		Seq:       hs.seq,
		OpenTime:  hs.openTime,
		CloseTime: closeTime,
		Bytes:     bytes,
		Truncated: truncated,
	}); err != nil {
		if t.metrics != nil {
			t.metrics.StoreWritesFailed.Inc()
		}
		return err
	}

	if hs.dir != model.Write || realPath == "" {
		return nil
	}
	return t.refreshFileContent(hs.fileID, realPath, closeTime)
}

// RecordCloseWithContent finalizes handle the same way RecordClose does,
// but hashes content directly instead of re-reading a backing path. This is
// how the VDF Executor records a derivation's output: the bytes only ever
// exist in the cache's in-memory buffer, never on the real filesystem.
func (t *Tracker) RecordCloseWithContent(handle Handle, content []byte) error {
	t.mu.Lock()
	hs := t.handles[handle]
	delete(t.handles, handle)
	t.mu.Unlock()
	if hs == nil {
		return nil
	}

	hs.mu.Lock()
	if hs.closed {
		hs.mu.Unlock()
		return nil
	}
	hs.closed = true
	bytesTransferred := hs.bytes
	hs.mu.Unlock()

	closeTime := t.now()
	if err := t.store.PutIOInterval(model.IOInterval{
		ID:        model.NewIOIntervalID(hs.processID, hs.fileID, hs.dir, hs.seq),
		ProcessID: hs.processID,
		FileID:    hs.fileID,
		Direction: hs.dir,
		Seq:       hs.seq,
		OpenTime:  hs.openTime,
		CloseTime: closeTime,
		Bytes:     bytesTransferred,
	}); err != nil {
		return err
	}
	if hs.dir != model.Write {
		return nil
	}

	f, ok, err := t.store.GetFile(hs.fileID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	sum := sha256.Sum256(content)
	f.Hash = hex.EncodeToString(sum[:])
	f.Size = int64(len(content))
	f.Mtime = closeTime
	return t.store.PutFile(f)
}

func (t *Tracker) refreshFileContent(id model.FileID, realPath string, mtime float64) error {
	f, ok, err := t.store.GetFile(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	info, err := os.Stat(realPath)
	if err != nil {
		// The file may already be unlinked by the time we get to hash it;
		// leave the prior content fields as-is rather than failing the
		// close.
		return nil
	}
	hash, err := procinfo.HashExecutable(realPath)
	if err != nil {
		return nil
	}

	f.Hash = hash
	f.Size = info.Size()
	f.Mtime = mtime
	return t.store.PutFile(f)
}

// CloseUnmount finalizes every still-open handle as Truncated, for recovery
// at unmount when a normal close was never observed.
func (t *Tracker) CloseUnmount() error {
	t.mu.Lock()
	handles := make([]*handleState, 0, len(t.handles))
	for h, hs := range t.handles {
		handles = append(handles, hs)
		delete(t.handles, h)
	}
	t.mu.Unlock()

	for _, hs := range handles {
		if err := t.finalize(hs, "", true); err != nil {
			return err
		}
	}
	return nil
}

// RecordRename updates a File's display path in place. If the destination
// falls outside the tracked mount, the caller passes escaped=true and the
// record is marked EscapedAt rather than deleted, per spec: files are never
// destroyed from the store.
func (t *Tracker) RecordRename(id model.FileID, newPath string, escaped bool) error {
	f, ok, err := t.store.GetFile(id)
	if err != nil {
		return err
	}
	if !ok {
		return t.store.PutFile(model.File{ID: id, Path: newPath})
	}
	f.Path = newPath
	if escaped {
		now := t.now()
		f.EscapedAt = &now
	}
	return t.store.PutFile(f)
}

// RecordUnlink marks a File as unlinked without removing its record.
func (t *Tracker) RecordUnlink(id model.FileID) error {
	f, ok, err := t.store.GetFile(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	now := t.now()
	f.UnlinkedAt = &now
	return t.store.PutFile(f)
}
