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
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toniwestbrook/repeatfs/internal/provenance/export"
)

func TestRunExecutesStepsAndCapturesOutput(t *testing.T) {
	doc := &export.Document{
		Process: map[string]export.ProcessRecord{
			"p1": {Host: "h", Start: 1.0, PID: 1, Cmd: []string{"echo", "hello"}},
		},
		Read:  map[string]export.IORecord{},
		Write: map[string]export.IORecord{},
	}
	steps, err := Schedule(doc)
	require.NoError(t, err)

	var out bytes.Buffer
	results, err := Run(context.Background(), steps, Options{Stdout: &out})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Executed)
	require.Equal(t, 0, results[0].ExitStatus)
	require.Equal(t, "hello\n", out.String())
}

func TestRunAbortsOnProcessFailedToExecute(t *testing.T) {
	doc := &export.Document{
		Process: map[string]export.ProcessRecord{
			"p1": {Host: "h", Start: 1.0, PID: 1, Cmd: []string{"/no/such/binary-xyz"}},
		},
		Read:  map[string]export.IORecord{},
		Write: map[string]export.IORecord{},
	}
	steps, err := Schedule(doc)
	require.NoError(t, err)

	_, err = Run(context.Background(), steps, Options{})
	require.Error(t, err)
}

func TestRestoreEnvFiltersToAllowList(t *testing.T) {
	recorded := []string{"PATH=/usr/bin", "SECRET=shh", "LANG=C"}
	out := restoreEnv(recorded, []string{"PATH", "LANG"})
	require.Contains(t, out, "PATH=/usr/bin")
	require.Contains(t, out, "LANG=C")
	require.NotContains(t, out, "SECRET=shh")
}

func TestRewriteCwdJoinsUnderRoot(t *testing.T) {
	require.Equal(t, "/replica/work", rewriteCwd("/replica", "work"))
	require.Equal(t, "/original/work", rewriteCwd("", "/original/work"))
}

func forkDoc() *export.Document {
	return &export.Document{
		Process: map[string]export.ProcessRecord{
			"p1": {Host: "h", Start: 1.0, PID: 1, Cmd: []string{"echo", "parent"}},
			"p2": {Host: "h", Start: 2.0, PID: 2, ParentPID: 1, ParentStart: 1.0, Cmd: []string{"echo", "child"}},
		},
		Read:  map[string]export.IORecord{},
		Write: map[string]export.IORecord{},
	}
}

func TestVisibleCollapsesNonRootStepsByDefault(t *testing.T) {
	doc := forkDoc()
	steps, err := Schedule(doc)
	require.NoError(t, err)

	visible := Visible(steps, nil)
	require.Len(t, visible, 1)
	require.Equal(t, "p1", visible[0].ID)
}

func TestVisibleExpandsNamedSteps(t *testing.T) {
	doc := forkDoc()
	steps, err := Schedule(doc)
	require.NoError(t, err)

	visible := Visible(steps, map[string]bool{"p2": true})
	require.Len(t, visible, 2)
}

func TestListCollapsesNonRootStepsByDefault(t *testing.T) {
	doc := forkDoc()
	steps, err := Schedule(doc)
	require.NoError(t, err)

	out := List(steps, nil)
	require.Contains(t, out, "echo parent")
	require.NotContains(t, out, "echo child")
}

func TestRunExpandRunsCollapsedStepToo(t *testing.T) {
	doc := forkDoc()
	steps, err := Schedule(doc)
	require.NoError(t, err)

	var out bytes.Buffer
	results, err := Run(context.Background(), steps, Options{Stdout: &out, Expand: map[string]bool{"p2": true}})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestRunWithoutExpandSkipsNonRootStep(t *testing.T) {
	doc := forkDoc()
	steps, err := Schedule(doc)
	require.NoError(t, err)

	var out bytes.Buffer
	results, err := Run(context.Background(), steps, Options{Stdout: &out})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "p1", results[0].Step.ID)
}
