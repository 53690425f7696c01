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

package replicate

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/toniwestbrook/repeatfs/internal/procinfo"
	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

// Options configures one replication run.
type Options struct {
	// Root is the replication root; each step's recorded cwd is rewritten
	// relative to it.
	Root string

	// EnvAllowList restricts which recorded environment variables are
	// restored into the re-executed process; unrecognized names are
	// dropped.
	EnvAllowList []string

	// Expand lists process IDs that must be individually re-executed even
	// if a higher-level process would otherwise be assumed to have
	// produced their output already (see DESIGN.md's Open Question
	// decision on this mode).
	Expand map[string]bool

	Stdout io.Writer
	Stderr io.Writer
}

// Verification is the per-step outcome of re-executing and checking one
// process against its recorded identity.
type Verification struct {
	Step       Step
	Executed   bool
	ExitStatus int
	HashMatch  bool
	ArgvMatch  bool
	Warnings   []string
}

// Visible filters schedule down to the steps that should actually appear in
// a listing or be re-executed: every root step (no recorded parent present
// in the document) plus any step named in expand. A non-root step is
// assumed to be reproduced as a side effect of re-running its ancestor
// root process, so it is collapsed out of the default view; expand (per
// spec §4.8's expand mode) forces it to be split out and re-executed
// individually anyway. Order is preserved, so the result remains a valid
// schedule.
func Visible(schedule []Step, expand map[string]bool) []Step {
	out := make([]Step, 0, len(schedule))
	for _, step := range schedule {
		if step.ParentID == "" || expand[step.ID] {
			out = append(out, step)
		}
	}
	return out
}

// List renders schedule as the human-readable listing produced by
// `replicate -l`: one "[host|start|pid]" header per step followed by its
// command line, in schedule order. expand controls which non-root steps
// are split out, per Visible.
func List(schedule []Step, expand map[string]bool) string {
	var b strings.Builder
	for _, step := range Visible(schedule, expand) {
		p := step.Process
		fmt.Fprintf(&b, "[%s|%.6f|%d]\n", p.Host, p.Start, p.PID)
		fmt.Fprintf(&b, "  %s\n", strings.Join(p.Cmd, " "))
	}
	return b.String()
}

// Run re-executes the visible steps of schedule in order (see Visible),
// verifying each. It returns as many Verification results as steps
// completed; a ProcessFailed abort returns the partial results alongside
// the error.
func Run(ctx context.Context, schedule []Step, opts Options) ([]Verification, error) {
	var results []Verification

	for _, step := range Visible(schedule, opts.Expand) {
		v, err := runStep(ctx, step, opts)
		results = append(results, v)
		if err != nil {
			return results, fmt.Errorf("%w: step %s: %v", repeatfserr.ProcessFailed, step.ID, err)
		}
	}
	return results, nil
}

func runStep(ctx context.Context, step Step, opts Options) (Verification, error) {
	p := step.Process
	v := Verification{Step: step}

	if len(p.Cmd) == 0 {
		v.Warnings = append(v.Warnings, "no recorded command line; skipped")
		return v, nil
	}

	dir := rewriteCwd(opts.Root, p.Cwd)
	cmd := exec.CommandContext(ctx, p.Cmd[0], p.Cmd[1:]...)
	cmd.Dir = dir
	cmd.Env = restoreEnv(p.Env, opts.EnvAllowList)
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}

	if err := cmd.Start(); err != nil {
		return v, err
	}
	v.Executed = true

	resolvedPath, lookErr := exec.LookPath(p.Cmd[0])
	var actualHash string
	if lookErr == nil {
		if h, err := procinfo.HashExecutable(resolvedPath); err == nil {
			actualHash = h
		}
	}
	v.HashMatch = p.Hash == "" || p.Hash == actualHash
	v.ArgvMatch = true // argv is exactly what we just launched with

	waitErr := cmd.Wait()
	status := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		} else {
			return v, waitErr
		}
	}
	v.ExitStatus = status

	if !v.HashMatch {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%v: executable hash differs from recorded %s", repeatfserr.VersionMismatch, p.Hash))
	}

	return v, nil
}

func rewriteCwd(root, recordedCwd string) string {
	if root == "" {
		return recordedCwd
	}
	if recordedCwd == "" {
		return root
	}
	return filepath.Join(root, recordedCwd)
}

func restoreEnv(recorded, allowList []string) []string {
	allowed := make(map[string]bool, len(allowList))
	for _, k := range allowList {
		allowed[k] = true
	}
	var out []string
	for _, kv := range recorded {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if allowed[name] {
			out = append(out, kv)
		}
	}
	return out
}
