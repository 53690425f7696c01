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

// Package replicate implements the Replicator (component C8): given an
// exported provenance document, compute a deterministic re-execution
// schedule and drive it against real processes, verifying that tool
// versions and arguments match what was recorded.
package replicate

import (
	"fmt"
	"sort"

	"github.com/toniwestbrook/repeatfs/internal/provenance/export"
	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

// Step is one scheduled process, carrying everything needed to
// re-execute and verify it.
type Step struct {
	ID string

	// ParentID is the scheduled ID of this step's recorded parent process,
	// or "" if it has none in the document. Re-executing the parent is
	// assumed to reproduce a non-root step's output as a side effect,
	// which is what makes it collapsible in the default (non-expanded)
	// listing/run, per spec §4.8's expand mode.
	ParentID string

	Process export.ProcessRecord
}

// Schedule computes the topological order of doc's processes: (a) a
// process runs after every process whose output it reads, (b) a process
// runs after its parent starts, (c) ties are broken by (pstart, pid), per
// spec §4.8.
func Schedule(doc *export.Document) ([]Step, error) {
	deps := map[string]map[string]bool{} // node -> set of nodes it depends on
	for id := range doc.Process {
		deps[id] = map[string]bool{}
	}

	// (a) read-after-write, per file: the dependency is the writer whose
	// close precedes the reader's open most recently.
	for _, r := range doc.Read {
		var bestWriter string
		var bestClose float64
		found := false
		for _, w := range doc.Write {
			if w.File != r.File {
				continue
			}
			if w.CloseTime > r.OpenTime {
				continue
			}
			if !found || w.CloseTime > bestClose {
				bestWriter = w.Process
				bestClose = w.CloseTime
				found = true
			}
		}
		if found && bestWriter != r.Process {
			if _, ok := deps[r.Process]; ok {
				deps[r.Process][bestWriter] = true
			}
		}
	}

	// (b) parent starts before child.
	for id, p := range doc.Process {
		if p.ParentPID == 0 {
			continue
		}
		parentID := findProcessID(doc, p.ParentPID, p.ParentStart)
		if parentID != "" && parentID != id {
			deps[id][parentID] = true
		}
	}

	return kahn(doc, deps)
}

// parentOf resolves id's recorded parent to its own scheduled ID, or ""
// if id has no recorded parent or the parent isn't in doc.
func parentOf(doc *export.Document, id string) string {
	p := doc.Process[id]
	if p.ParentPID == 0 {
		return ""
	}
	return findProcessID(doc, p.ParentPID, p.ParentStart)
}

func findProcessID(doc *export.Document, pid int, start float64) string {
	for id, p := range doc.Process {
		if p.PID == pid && p.Start == start {
			return id
		}
	}
	return ""
}

func kahn(doc *export.Document, deps map[string]map[string]bool) ([]Step, error) {
	inDegree := map[string]int{}
	dependents := map[string][]string{}
	for id, ds := range deps {
		inDegree[id] = len(ds)
		for dep := range ds {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]string, 0, len(inDegree))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortByPstartPID(doc, ready)

	var out []Step
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, Step{ID: id, ParentID: parentOf(doc, id), Process: doc.Process[id]})

		var newlyReady []string
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sortByPstartPID(doc, newlyReady)
		ready = mergeSorted(doc, ready, newlyReady)
	}

	if len(out) != len(doc.Process) {
		return nil, fmt.Errorf("%w: %d of %d processes scheduled", repeatfserr.ScheduleCyclic, len(out), len(doc.Process))
	}
	return out, nil
}

func sortByPstartPID(doc *export.Document, ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := doc.Process[ids[i]], doc.Process[ids[j]]
		if pi.Start != pj.Start {
			return pi.Start < pj.Start
		}
		return pi.PID < pj.PID
	})
}

// mergeSorted merges two already-sorted-by-(pstart,pid) id slices.
func mergeSorted(doc *export.Document, a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	merged := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	less := func(x, y string) bool {
		px, py := doc.Process[x], doc.Process[y]
		if px.Start != py.Start {
			return px.Start < py.Start
		}
		return px.PID < py.PID
	}
	for i < len(a) && j < len(b) {
		if less(a[i], b[j]) {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}
