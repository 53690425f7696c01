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

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toniwestbrook/repeatfs/internal/provenance/export"
	"github.com/toniwestbrook/repeatfs/internal/replicate"
)

var replicateCmd = &cobra.Command{
	Use:   "replicate <provenance.json>",
	Short: "Re-execute and verify the processes that produced an exported provenance document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := preRunConfig(); err != nil {
			return err
		}
		return runReplicate(args[0])
	},
}

func runReplicate(docPath string) error {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return usageError("reading %s: %w", docPath, err)
	}
	doc, err := export.Parse(data)
	if err != nil {
		return usageError("parsing %s: %w", docPath, err)
	}

	schedule, err := replicate.Schedule(doc)
	if err != nil {
		return runtimeError(err)
	}

	rc := Settings.Replicate

	expand, err := expandSet(rc.Expand, schedule)
	if err != nil {
		return usageError("%w", err)
	}

	if rc.ListOnly {
		fmt.Fprint(os.Stdout, replicate.List(schedule, expand))
		return nil
	}

	opts := replicate.Options{
		Root:   rc.Dest,
		Expand: expand,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if rc.StdoutFile != "" {
		f, err := os.Create(rc.StdoutFile)
		if err != nil {
			return runtimeError(fmt.Errorf("creating stdout capture file: %w", err))
		}
		defer f.Close()
		opts.Stdout = f
	}
	if rc.StderrFile != "" {
		f, err := os.Create(rc.StderrFile)
		if err != nil {
			return runtimeError(fmt.Errorf("creating stderr capture file: %w", err))
		}
		defer f.Close()
		opts.Stderr = f
	}

	results, err := replicate.Run(context.Background(), schedule, opts)
	if err != nil {
		return runtimeError(err)
	}

	var warnings int
	for _, v := range results {
		for _, w := range v.Warnings {
			fmt.Fprintf(os.Stderr, "warning: step %s: %s\n", v.Step.ID, w)
			warnings++
		}
	}
	if warnings > 0 {
		return verificationWarningError(fmt.Errorf("%d verification warning(s)", warnings))
	}
	return nil
}

// expandSet turns cfg's boolean Expand flag into the per-step set the
// replicator expects: true expands every step in schedule, matching the
// "expand every collapsed process group" behavior documented in
// DESIGN.md's Open Question decision for this flag.
func expandSet(expandAll bool, schedule []replicate.Step) (map[string]bool, error) {
	if !expandAll {
		return nil, nil
	}
	expand := make(map[string]bool, len(schedule))
	for _, step := range schedule {
		expand[step.ID] = true
	}
	return expand, nil
}
