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

package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "prov.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetFile(t *testing.T) {
	s := open(t)
	f := model.File{ID: model.NewFileID("host", 1, 42), Path: "/a/b.txt", Size: 10}
	require.NoError(t, s.PutFile(f))

	got, ok, err := s.GetFile(f.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f, got)
}

func TestGetFileMissing(t *testing.T) {
	s := open(t)
	_, ok, err := s.GetFile(model.NewFileID("host", 1, 999))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutGetProcess(t *testing.T) {
	s := open(t)
	p := model.Process{ID: model.NewProcessID("host", 100.5, 7), PID: 7, Start: 100.5, Exe: "/bin/cat"}
	require.NoError(t, s.PutProcess(p))

	got, ok, err := s.GetProcess(p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p, got)
}

func TestPutIOIntervalRequiresExistingFileAndProcess(t *testing.T) {
	s := open(t)
	proc := model.Process{ID: model.NewProcessID("host", 1.0, 1), PID: 1, Start: 1.0}
	file := model.File{ID: model.NewFileID("host", 1, 1), Path: "/x"}

	io := model.IOInterval{
		ID:        model.NewIOIntervalID(proc.ID, file.ID, model.Read, 1),
		ProcessID: proc.ID,
		FileID:    file.ID,
		Direction: model.Read,
		Seq:       1,
	}

	err := s.PutIOInterval(io)
	require.Error(t, err)

	require.NoError(t, s.PutProcess(proc))
	err = s.PutIOInterval(io)
	require.Error(t, err, "still missing the file")

	require.NoError(t, s.PutFile(file))
	require.NoError(t, s.PutIOInterval(io))

	got, ok, err := s.GetIOInterval(io.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, io, got)
}

func TestPutForkEdgeAndList(t *testing.T) {
	s := open(t)
	parent := model.NewProcessID("host", 1.0, 1)
	child := model.NewProcessID("host", 2.0, 2)
	require.NoError(t, s.PutForkEdge(model.ForkEdge{ParentID: parent, ChildID: child}))

	edges, err := s.AllForkEdges()
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, parent, edges[0].ParentID)
	require.Equal(t, child, edges[0].ChildID)
}

func TestAllIOIntervalsAndAllProcesses(t *testing.T) {
	s := open(t)
	proc := model.Process{ID: model.NewProcessID("host", 1.0, 1), PID: 1, Start: 1.0}
	file := model.File{ID: model.NewFileID("host", 1, 1), Path: "/x"}
	require.NoError(t, s.PutProcess(proc))
	require.NoError(t, s.PutFile(file))

	io1 := model.IOInterval{ID: model.NewIOIntervalID(proc.ID, file.ID, model.Read, 1), ProcessID: proc.ID, FileID: file.ID, Direction: model.Read, Seq: 1}
	io2 := model.IOInterval{ID: model.NewIOIntervalID(proc.ID, file.ID, model.Write, 2), ProcessID: proc.ID, FileID: file.ID, Direction: model.Write, Seq: 2}
	require.NoError(t, s.PutIOInterval(io1))
	require.NoError(t, s.PutIOInterval(io2))

	ios, err := s.AllIOIntervals()
	require.NoError(t, err)
	require.Len(t, ios, 2)

	procs, err := s.AllProcesses()
	require.NoError(t, err)
	require.Len(t, procs, 1)
}

func TestUpdateExhaustsRetryAndReturnsStoreUnavailable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prov.db"), WithRetry(2, 0))
	require.NoError(t, err)
	defer s.Close()

	boom := errors.New("boom")
	err = s.update(func(tx *bolt.Tx) error {
		return boom
	})
	require.Error(t, err)
	require.ErrorIs(t, err, repeatfserr.StoreUnavailable)
}
