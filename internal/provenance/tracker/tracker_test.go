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

package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toniwestbrook/repeatfs/clock"
	"github.com/toniwestbrook/repeatfs/internal/procinfo"
	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
)

type fakeIntrospector struct {
	byPID map[int]procinfo.Snapshot
}

func (f *fakeIntrospector) Snapshot(ctx context.Context, pid int) (procinfo.Snapshot, error) {
	return f.byPID[pid], nil
}

func newTestTracker(t *testing.T, intro *fakeIntrospector) (*Tracker, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "prov.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, intro, clock.NewSimulatedClock(time.Unix(1000, 0)), "host"), s
}

func TestRecordOpenReadWriteCloseRoundTrip(t *testing.T) {
	intro := &fakeIntrospector{byPID: map[int]procinfo.Snapshot{
		42: {PID: 42, Start: 500.0, Exe: "/bin/cp", Argv: []string{"cp", "a", "b"}},
	}}
	tr, s := newTestTracker(t, intro)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	fileID := model.NewFileID("host", 1, 1)
	require.NoError(t, tr.RecordOpen(context.Background(), Handle(1), 42, fileID, path, model.Write))

	tr.RecordIO(Handle(1), 5)
	tr.RecordIO(Handle(1), 6)

	require.NoError(t, tr.RecordClose(Handle(1), path))

	procID := model.NewProcessID("host", 500.0, 42)
	proc, ok, err := s.GetProcess(procID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/bin/cp", proc.Exe)

	ios, err := s.AllIOIntervals()
	require.NoError(t, err)
	require.Len(t, ios, 1)
	require.Equal(t, int64(11), ios[0].Bytes)
	require.False(t, ios[0].Truncated)
	require.True(t, ios[0].CloseTime > ios[0].OpenTime || ios[0].CloseTime == ios[0].OpenTime)

	f, ok, err := s.GetFile(fileID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, f.Hash)
	require.Equal(t, int64(11), f.Size)
}

func TestRecordOpenMaterializesForkEdge(t *testing.T) {
	intro := &fakeIntrospector{byPID: map[int]procinfo.Snapshot{
		10: {PID: 10, Start: 100.0, Exe: "/bin/bash"},
		11: {PID: 11, Start: 101.0, Exe: "/bin/cp", ParentPID: 10, ParentStart: 100.0},
	}}
	tr, s := newTestTracker(t, intro)

	ctx := context.Background()
	_, err := tr.EnsureProcess(ctx, 10)
	require.NoError(t, err)
	_, err = tr.EnsureProcess(ctx, 11)
	require.NoError(t, err)

	edges, err := s.AllForkEdges()
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, model.NewProcessID("host", 100.0, 10), edges[0].ParentID)
	require.Equal(t, model.NewProcessID("host", 101.0, 11), edges[0].ChildID)
}

func TestCloseUnmountMarksOpenHandlesTruncated(t *testing.T) {
	intro := &fakeIntrospector{byPID: map[int]procinfo.Snapshot{
		7: {PID: 7, Start: 1.0, Exe: "/bin/tail"},
	}}
	tr, s := newTestTracker(t, intro)

	fileID := model.NewFileID("host", 1, 5)
	require.NoError(t, tr.RecordOpen(context.Background(), Handle(9), 7, fileID, "/tmp/f", model.Read))
	require.NoError(t, tr.CloseUnmount())

	ios, err := s.AllIOIntervals()
	require.NoError(t, err)
	require.Len(t, ios, 1)
	require.True(t, ios[0].Truncated)
}

func TestRecordUnlinkKeepsFileRecord(t *testing.T) {
	intro := &fakeIntrospector{}
	tr, s := newTestTracker(t, intro)

	fileID := model.NewFileID("host", 1, 8)
	require.NoError(t, tr.EnsureFile(fileID, "/tmp/gone"))
	require.NoError(t, tr.RecordUnlink(fileID))

	f, ok, err := s.GetFile(fileID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, f.UnlinkedAt)
}
