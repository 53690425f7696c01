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

package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "prov.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// buildChain records: parent shell forks a child that reads input.txt and
// writes output.txt. Querying output.txt should pull in the child process,
// input.txt, and (by fork ancestry) the parent shell.
func buildChain(t *testing.T, s *store.Store) (input, output model.FileID, parent, child model.ProcessID) {
	t.Helper()

	input = model.NewFileID("host", 1, 100)
	output = model.NewFileID("host", 1, 200)
	require.NoError(t, s.PutFile(model.File{ID: input, Path: "/data/input.txt"}))
	require.NoError(t, s.PutFile(model.File{ID: output, Path: "/data/output.txt"}))

	parent = model.NewProcessID("host", 1000.0, 50)
	child = model.NewProcessID("host", 1001.0, 51)
	require.NoError(t, s.PutProcess(model.Process{ID: parent, PID: 50, Start: 1000.0, Exe: "/bin/bash"}))
	require.NoError(t, s.PutProcess(model.Process{ID: child, PID: 51, Start: 1001.0, ParentID: parent, Exe: "/usr/bin/cp"}))
	require.NoError(t, s.PutForkEdge(model.ForkEdge{ParentID: parent, ChildID: child}))

	require.NoError(t, s.PutIOInterval(model.IOInterval{
		ID: model.NewIOIntervalID(child, input, model.Read, 1), ProcessID: child, FileID: input, Direction: model.Read, Seq: 1,
	}))
	require.NoError(t, s.PutIOInterval(model.IOInterval{
		ID: model.NewIOIntervalID(child, output, model.Write, 2), ProcessID: child, FileID: output, Direction: model.Write, Seq: 2,
	}))
	return
}

func TestQueryTracesWriterReaderAndAncestry(t *testing.T) {
	s := openTestStore(t)
	input, output, parent, child := buildChain(t, s)

	g, err := Query(s, output, 0)
	require.NoError(t, err)

	require.Contains(t, g.Files, output)
	require.Contains(t, g.Files, input)
	require.Contains(t, g.Processes, child)
	require.Contains(t, g.Processes, parent)
	require.Len(t, g.IOEdges, 2)
	require.Len(t, g.ForkEdges, 1)
	require.Equal(t, parent, g.ForkEdges[0].ParentID)
	require.Equal(t, child, g.ForkEdges[0].ChildID)
}

func TestQueryDepthBoundStopsAtFirstHop(t *testing.T) {
	s := openTestStore(t)
	input, output, parent, child := buildChain(t, s)

	g, err := Query(s, output, 1)
	require.NoError(t, err)

	require.Contains(t, g.Files, output)
	require.Contains(t, g.Processes, child)
	require.NotContains(t, g.Files, input)
	require.NotContains(t, g.Processes, parent)
}

func TestQueryUnwrittenFileReturnsOnlyItself(t *testing.T) {
	s := openTestStore(t)
	lone := model.NewFileID("host", 1, 900)
	require.NoError(t, s.PutFile(model.File{ID: lone, Path: "/data/lone.txt"}))

	g, err := Query(s, lone, 0)
	require.NoError(t, err)

	require.Len(t, g.Files, 1)
	require.Empty(t, g.Processes)
	require.Empty(t, g.IOEdges)
	require.Empty(t, g.ForkEdges)
}
