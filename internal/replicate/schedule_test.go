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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toniwestbrook/repeatfs/internal/provenance/export"
	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

func chainDoc() *export.Document {
	return &export.Document{
		File: map[string]export.FileRecord{
			"fa": {Path: "/a.txt"},
			"fb": {Path: "/b.txt"},
			"fc": {Path: "/c.txt"},
		},
		Process: map[string]export.ProcessRecord{
			"p1": {Host: "h", Start: 1.0, PID: 1, Cmd: []string{"wget", "a.txt"}},
			"p2": {Host: "h", Start: 2.0, PID: 2, Cmd: []string{"gzip", "-d", "a.txt"}},
			"p3": {Host: "h", Start: 3.0, PID: 3, Cmd: []string{"grep", "x", "b.txt"}},
		},
		Read: map[string]export.IORecord{
			"r1": {Process: "p2", File: "fa", OpenTime: 2.0, CloseTime: 2.1},
			"r2": {Process: "p3", File: "fb", OpenTime: 3.0, CloseTime: 3.1},
		},
		Write: map[string]export.IORecord{
			"w1": {Process: "p1", File: "fa", OpenTime: 1.0, CloseTime: 1.1},
			"w2": {Process: "p2", File: "fb", OpenTime: 2.1, CloseTime: 2.2},
			"w3": {Process: "p3", File: "fc", OpenTime: 3.1, CloseTime: 3.2},
		},
	}
}

func TestScheduleOrdersByReadAfterWrite(t *testing.T) {
	doc := chainDoc()
	steps, err := Schedule(doc)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	order := map[string]int{}
	for i, s := range steps {
		order[s.ID] = i
	}
	require.Less(t, order["p1"], order["p2"])
	require.Less(t, order["p2"], order["p3"])
}

func TestScheduleTieBreaksOnPstartThenPID(t *testing.T) {
	doc := &export.Document{
		Process: map[string]export.ProcessRecord{
			"a": {Host: "h", Start: 5.0, PID: 20},
			"b": {Host: "h", Start: 5.0, PID: 10},
		},
		Read:  map[string]export.IORecord{},
		Write: map[string]export.IORecord{},
	}
	steps, err := Schedule(doc)
	require.NoError(t, err)
	require.Equal(t, "b", steps[0].ID)
	require.Equal(t, "a", steps[1].ID)
}

func TestScheduleParentBeforeChild(t *testing.T) {
	doc := &export.Document{
		Process: map[string]export.ProcessRecord{
			"parent": {Host: "h", Start: 1.0, PID: 1},
			"child":  {Host: "h", Start: 2.0, PID: 2, ParentPID: 1, ParentStart: 1.0},
		},
		Read:  map[string]export.IORecord{},
		Write: map[string]export.IORecord{},
	}
	steps, err := Schedule(doc)
	require.NoError(t, err)
	require.Equal(t, "parent", steps[0].ID)
	require.Equal(t, "child", steps[1].ID)
}

func TestScheduleDetectsCycle(t *testing.T) {
	doc := &export.Document{
		Process: map[string]export.ProcessRecord{
			"a": {Host: "h", Start: 1.0, PID: 1},
			"b": {Host: "h", Start: 2.0, PID: 2},
		},
		Read: map[string]export.IORecord{
			"r1": {Process: "a", File: "f1", OpenTime: 1.0, CloseTime: 1.1},
			"r2": {Process: "b", File: "f2", OpenTime: 2.0, CloseTime: 2.1},
		},
		Write: map[string]export.IORecord{
			"w1": {Process: "b", File: "f1", OpenTime: 0.5, CloseTime: 0.9},
			"w2": {Process: "a", File: "f2", OpenTime: 1.5, CloseTime: 1.9},
		},
	}
	_, err := Schedule(doc)
	require.ErrorIs(t, err, repeatfserr.ScheduleCyclic)
}

func TestListFormatsHeaderAndCommand(t *testing.T) {
	doc := chainDoc()
	steps, err := Schedule(doc)
	require.NoError(t, err)

	out := List(steps, nil)
	require.Contains(t, out, "[h|1.000000|1]")
	require.Contains(t, out, "wget a.txt")
}

func TestScheduleSetsParentID(t *testing.T) {
	doc := &export.Document{
		Process: map[string]export.ProcessRecord{
			"parent": {Host: "h", Start: 1.0, PID: 1},
			"child":  {Host: "h", Start: 2.0, PID: 2, ParentPID: 1, ParentStart: 1.0},
		},
		Read:  map[string]export.IORecord{},
		Write: map[string]export.IORecord{},
	}
	steps, err := Schedule(doc)
	require.NoError(t, err)

	byID := map[string]Step{}
	for _, s := range steps {
		byID[s.ID] = s
	}
	require.Equal(t, "", byID["parent"].ParentID)
	require.Equal(t, "parent", byID["child"].ParentID)
}
