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

package vdf

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/toniwestbrook/repeatfs/clock"
	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/provenance/tracker"
	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
	"github.com/toniwestbrook/repeatfs/metrics"
)

// Invocation is everything the Executor needs to spawn a rule's derivation
// for one cache key.
type Invocation struct {
	Rule       Rule
	InputPath  string // real backing path of the rule's input
	OutputPath string // virtual path of the VDF leaf this derivation produces
	OutputFile model.FileID
	Dir        string // working directory the command runs from
	CallerPID  int
}

// Executor runs VDF derivations and serves their output out of a Cache,
// enforcing at most one build per cache key. The derivation itself is
// recorded through the Tracker exactly as if a user had invoked it, with
// the VDF leaf as its output file, per spec §4.6.
type Executor struct {
	cache    *Cache
	tr       *tracker.Tracker
	clock    clock.Clock
	hostname string

	// handleSeq is a monotonically increasing source of tracker.Handle values
	// for the synthetic open/close span each derivation's output
	// represents.
	handleSeq uint64

	metrics *metrics.Handle
}

// NewExecutor creates an Executor over cache, recording derivations through
// tr.
func NewExecutor(cache *Cache, tr *tracker.Tracker, c clock.Clock, hostname string) *Executor {
	return &Executor{cache: cache, tr: tr, clock: c, hostname: hostname}
}

// SetMetrics attaches a metrics Handle that build starts/completions/
// failures and durations report into. A nil handle (the default) disables
// reporting.
func (e *Executor) SetMetrics(h *metrics.Handle) {
	e.metrics = h
}

// Acquire returns the cache entry for key, starting the derivation in the
// background if this is the first accessor. The caller must call Release
// once it is done reading.
func (e *Executor) Acquire(ctx context.Context, key string, inv Invocation) (*Entry, error) {
	ent, created := e.cache.getOrCreate(key)
	ent.acquireReader()

	if created {
		ent.mu.Lock()
		ent.state = StateBuilding
		ent.mu.Unlock()
		go e.build(ctx, ent, inv)
	}
	return ent, nil
}

// Release drops the caller's read pin on ent.
func (e *Executor) Release(ent *Entry) {
	ent.releaseReader()
}

// ReadAt serves up to len(p) bytes at offset from ent, blocking until
// either enough bytes have been built or the build reaches a terminal
// state.
func (e *Executor) ReadAt(ent *Entry, offset int64, p []byte) (int, error) {
	_, state := ent.waitForBytes(offset + int64(len(p)))

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if state == StateFailed {
		return 0, fmt.Errorf("%w: %v", repeatfserr.IoError, ent.err)
	}
	if offset >= int64(len(ent.buf)) {
		return 0, nil // EOF: built (or built so far) content ends here
	}
	n := copy(p, ent.buf[offset:])
	return n, nil
}

// Size returns the currently-known buffer length and whether the build has
// reached Ready (a stable, final size).
func (e *Executor) Size(ent *Entry) (int64, bool) {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return int64(len(ent.buf)), ent.state == StateReady
}

func (e *Executor) build(ctx context.Context, ent *Entry, inv Invocation) {
	if e.metrics != nil {
		e.metrics.VDFBuildsStarted.Inc()
	}
	start := e.clock.Now()
	finish := func(err error) {
		if e.metrics != nil {
			e.metrics.VDFBuildDuration.Observe(e.clock.Now().Sub(start).Seconds())
			if err != nil {
				e.metrics.VDFBuildsFailed.Inc()
			} else {
				e.metrics.VDFBuildsCompleted.Inc()
			}
		}
		ent.finish(err)
	}

	cmdLine := expandTemplate(inv.Rule.Cmd, inv.InputPath, inv.OutputPath)
	argv := []string{"/bin/sh", "-c", cmdLine}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Rule.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		finish(err)
		return
	}
	if err := cmd.Start(); err != nil {
		finish(err)
		return
	}

	var handle tracker.Handle
	recording := e.beginRecording(ctx, cmd.Process.Pid, inv, &handle)

	buf := make([]byte, 32*1024)
	for {
		n, rerr := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ent.append(chunk)
			e.cache.recordSize(ent.key, int64(n))
			if recording {
				e.tr.RecordIO(handle, int64(n))
			}
		}
		if rerr != nil {
			break
		}
	}

	waitErr := cmd.Wait()

	if recording {
		ent.mu.Lock()
		content := append([]byte(nil), ent.buf...)
		ent.mu.Unlock()
		_ = e.tr.RecordCloseWithContent(handle, content)
		if waitErr == nil {
			_ = e.tr.RecordExit(e.childProcessID(ctx, cmd.Process.Pid, inv), 0)
		}
	}

	finish(waitErr)
}

// beginRecording materializes the derivation as a Process in the
// provenance store and opens a write handle for its output file, matching
// what would have been recorded had a user typed the same command
// themselves. It reports false (and records nothing) when no Tracker is
// wired, which is the case in VDF-only (degraded) mode.
func (e *Executor) beginRecording(ctx context.Context, childPID int, inv Invocation, handle *tracker.Handle) bool {
	if e.tr == nil {
		return false
	}
	if err := e.tr.EnsureVDFFile(inv.OutputFile, inv.OutputPath); err != nil {
		return false
	}
	*handle = tracker.Handle(atomic.AddUint64(&e.handleSeq, 1))
	if err := e.tr.RecordOpen(ctx, *handle, childPID, inv.OutputFile, inv.OutputPath, model.Write); err != nil {
		return false
	}
	return true
}

func (e *Executor) childProcessID(ctx context.Context, childPID int, inv Invocation) model.ProcessID {
	id, err := e.tr.EnsureProcess(ctx, childPID)
	if err != nil {
		return ""
	}
	return id
}

func expandTemplate(tmpl, input, output string) string {
	r := strings.NewReplacer("{input}", input, "{output}", output)
	return r.Replace(tmpl)
}
