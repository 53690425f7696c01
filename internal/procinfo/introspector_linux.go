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

//go:build linux

package procinfo

import (
	"context"
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/toniwestbrook/repeatfs/clock"
)

// ProcfsIntrospector reads /proc to snapshot a process. It is grounded on
// prometheus/procfs, already an indirect dependency of the teacher
// (pulled in transitively through prometheus/client_golang).
type ProcfsIntrospector struct {
	fs    procfs.FS
	clock clock.Clock
}

// New creates a procfs-backed Introspector rooted at /proc.
func New(c clock.Clock) (*ProcfsIntrospector, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &ProcfsIntrospector{fs: fs, clock: c}, nil
}

// Snapshot implements Introspector.
func (p *ProcfsIntrospector) Snapshot(ctx context.Context, pid int) (Snapshot, error) {
	observedAt := float64(p.clock.Now().UnixNano()) / 1e9

	proc, err := p.fs.Proc(pid)
	if err != nil {
		return Snapshot{}, fmt.Errorf("opening /proc/%d: %w", pid, err)
	}

	stat, err := proc.Stat()
	if err != nil {
		// The process may have exited between the caller observing it and
		// us reading /proc; this is a degraded snapshot, not a hard
		// failure, so the tracker can still record the bare PID.
		return Snapshot{PID: pid, ObservedAt: observedAt, Degraded: true}, nil
	}

	exe, err := proc.Executable()
	if err != nil {
		exe = ""
	}

	cmdline, err := proc.CmdLine()
	if err != nil {
		cmdline = nil
	}

	env, err := proc.Environ()
	if err != nil {
		env = nil
	}

	cwd, err := proc.Cwd()
	if err != nil {
		cwd = ""
	}

	var exeHash string
	if exe != "" {
		if h, err := HashExecutable(exe); err == nil {
			exeHash = h
		}
	}

	bootTime, startSeconds := float64(0), float64(0)
	if stat2, err := p.fs.Stat(); err == nil {
		bootTime = float64(stat2.BootTime)
	}
	// stat.Starttime is in clock ticks since boot; procfs normalizes this
	// for us via StartTime(), which returns the wall-clock start time in
	// seconds since the epoch given the host's boot time.
	if st, err := stat.StartTime(); err == nil {
		startSeconds = st
	} else {
		startSeconds = bootTime
	}

	snap := Snapshot{
		PID:        pid,
		ObservedAt: observedAt,
		Exe:        exe,
		ExeHash:    exeHash,
		Argv:       cmdline,
		Env:        env,
		Cwd:        cwd,
		Start:      startSeconds,
		ParentPID:  stat.PPID,
	}

	if stat.PPID > 0 {
		if pproc, err := p.fs.Proc(stat.PPID); err == nil {
			if pstat, err := pproc.Stat(); err == nil {
				if pst, err := pstat.StartTime(); err == nil {
					snap.ParentStart = pst
				}
			}
		}
	}

	return snap, nil
}
