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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toniwestbrook/repeatfs/clock"
	"github.com/toniwestbrook/repeatfs/internal/procinfo"
	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
	"github.com/toniwestbrook/repeatfs/internal/provenance/tracker"
)

type staticIntrospector struct{}

func (staticIntrospector) Snapshot(ctx context.Context, pid int) (procinfo.Snapshot, error) {
	return procinfo.Snapshot{PID: pid, Start: 42.0, Exe: "/bin/sh"}, nil
}

func newTestExecutor(t *testing.T) (*Executor, *Cache) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "prov.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := clock.NewSimulatedClock(time.Unix(1, 0))
	tr := tracker.New(s, staticIntrospector{}, c, "host")
	cache := NewCache(0, c)
	return NewExecutor(cache, tr, c, "host"), cache
}

func readAllReady(t *testing.T, ex *Executor, ent *Entry) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 64)
	for {
		n, err := ex.ReadAt(ent, int64(len(got)), buf)
		require.NoError(t, err)
		if n == 0 {
			if _, ready := ex.Size(ent); ready {
				return got
			}
			continue
		}
		got = append(got, buf[:n]...)
	}
}

func TestExecutorBuildsAndServesReadyOutput(t *testing.T) {
	ex, _ := newTestExecutor(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("hello\n"), 0o644))

	inv := Invocation{
		Rule:       Rule{Name: "upper", Cmd: "cat {input}"},
		InputPath:  input,
		OutputPath: "/mnt/in.txt+/in.txt.upper",
		OutputFile: model.NewFileID("host", 0, 1),
		Dir:        dir,
	}

	ent, err := ex.Acquire(context.Background(), "key1", inv)
	require.NoError(t, err)
	defer ex.Release(ent)

	require.Equal(t, "hello\n", string(readAllReady(t, ex, ent)))
}

func TestExecutorFailedBuildServesIoError(t *testing.T) {
	ex, _ := newTestExecutor(t)

	inv := Invocation{
		Rule:       Rule{Name: "bad", Cmd: "exit 1"},
		OutputPath: "/mnt/x+/x.bad",
		OutputFile: model.NewFileID("host", 0, 2),
		Dir:        t.TempDir(),
	}

	ent, err := ex.Acquire(context.Background(), "key2", inv)
	require.NoError(t, err)
	defer ex.Release(ent)

	_, err = ex.ReadAt(ent, 0, make([]byte, 1))
	require.Error(t, err)
}

func TestExecutorDedupesConcurrentBuilds(t *testing.T) {
	ex, cache := newTestExecutor(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	inv := Invocation{
		Rule:       Rule{Name: "same", Cmd: "cat {input}"},
		InputPath:  input,
		OutputPath: "/mnt/in.txt+/in.txt.same",
		OutputFile: model.NewFileID("host", 0, 3),
		Dir:        dir,
	}

	ent1, err := ex.Acquire(context.Background(), "dup", inv)
	require.NoError(t, err)
	ent2, err := ex.Acquire(context.Background(), "dup", inv)
	require.NoError(t, err)
	require.Same(t, ent1, ent2)

	ex.Release(ent1)
	ex.Release(ent2)
	require.Len(t, cache.entries, 1)
}
