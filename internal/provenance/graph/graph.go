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

// Package graph implements the Graph Query (component C7): a reverse
// breadth-first traversal of the provenance store's IO and Fork edges,
// producing the sub-graph of everything causally upstream of a target
// file.
//
// The provenance graph can appear cyclic when the same file is both read
// and written by chained processes. Per spec §9's design note, this is
// resolved by keying edges on (process, file, direction, open-sequence)
// and traversing that edge multi-set rather than a file-file graph — two
// processes trading reads and writes on the same file never collapse into
// a single self-loop node.
package graph

import (
	"sort"

	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
)

// Graph is the sub-graph returned by a query: deduplicated node sets and
// the edge multiset that connects them.
type Graph struct {
	Files     map[model.FileID]model.File
	Processes map[model.ProcessID]model.Process
	IOEdges   []model.IOInterval
	ForkEdges []model.ForkEdge
}

type nodeKind int

const (
	nodeFile nodeKind = iota
	nodeProcess
)

type nodeRef struct {
	kind nodeKind
	file model.FileID
	proc model.ProcessID
}

// Query performs a reverse BFS over IO and Fork edges starting from
// target, bounded by maxDepth edges (0 means unbounded). Traversal order
// is deterministic: candidate edges at each step are sorted by (process
// start time, then process ID, then IO sequence), per spec §4.7.
func Query(s *store.Store, target model.FileID, maxDepth int) (*Graph, error) {
	ios, err := s.AllIOIntervals()
	if err != nil {
		return nil, err
	}
	forks, err := s.AllForkEdges()
	if err != nil {
		return nil, err
	}
	procs, err := s.AllProcesses()
	if err != nil {
		return nil, err
	}

	procsByID := make(map[model.ProcessID]model.Process, len(procs))
	for _, p := range procs {
		procsByID[p.ID] = p
	}

	writesByFile := map[model.FileID][]model.IOInterval{}
	readsByProcess := map[model.ProcessID][]model.IOInterval{}
	for _, io := range ios {
		if io.Direction == model.Write {
			writesByFile[io.FileID] = append(writesByFile[io.FileID], io)
		} else {
			readsByProcess[io.ProcessID] = append(readsByProcess[io.ProcessID], io)
		}
	}
	forksByChild := map[model.ProcessID][]model.ForkEdge{}
	for _, fe := range forks {
		forksByChild[fe.ChildID] = append(forksByChild[fe.ChildID], fe)
	}
	// Fork edges are also recoverable from Process.ParentID when not
	// materialized in the store, per spec §4.0.
	for _, p := range procs {
		if p.ParentID == "" {
			continue
		}
		if _, ok := procsByID[p.ParentID]; !ok {
			continue
		}
		have := false
		for _, fe := range forksByChild[p.ID] {
			if fe.ParentID == p.ParentID {
				have = true
				break
			}
		}
		if !have {
			forksByChild[p.ID] = append(forksByChild[p.ID], model.ForkEdge{ParentID: p.ParentID, ChildID: p.ID})
		}
	}

	sortByRecordedOrder := func(rows []model.IOInterval) {
		sort.Slice(rows, func(i, j int) bool {
			pi, pj := procsByID[rows[i].ProcessID], procsByID[rows[j].ProcessID]
			if pi.Start != pj.Start {
				return pi.Start < pj.Start
			}
			if pi.PID != pj.PID {
				return pi.PID < pj.PID
			}
			return rows[i].Seq < rows[j].Seq
		})
	}

	g := &Graph{
		Files:     map[model.FileID]model.File{},
		Processes: map[model.ProcessID]model.Process{},
	}
	if f, ok, _ := s.GetFile(target); ok {
		g.Files[target] = f
	}

	type queued struct {
		ref   nodeRef
		depth int
	}
	visited := map[nodeRef]bool{{kind: nodeFile, file: target}: true}
	queue := []queued{{ref: nodeRef{kind: nodeFile, file: target}, depth: 0}}

	addedIO := map[model.IOIntervalID]bool{}
	addedFork := map[string]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}

		switch cur.ref.kind {
		case nodeFile:
			writers := append([]model.IOInterval(nil), writesByFile[cur.ref.file]...)
			sortByRecordedOrder(writers)
			for _, w := range writers {
				if !addedIO[w.ID] {
					addedIO[w.ID] = true
					g.IOEdges = append(g.IOEdges, w)
				}
				pref := nodeRef{kind: nodeProcess, proc: w.ProcessID}
				if p, ok, _ := s.GetProcess(w.ProcessID); ok {
					g.Processes[w.ProcessID] = p
				}
				if !visited[pref] {
					visited[pref] = true
					queue = append(queue, queued{ref: pref, depth: cur.depth + 1})
				}
			}

		case nodeProcess:
			reads := append([]model.IOInterval(nil), readsByProcess[cur.ref.proc]...)
			sortByRecordedOrder(reads)
			for _, r := range reads {
				if !addedIO[r.ID] {
					addedIO[r.ID] = true
					g.IOEdges = append(g.IOEdges, r)
				}
				fref := nodeRef{kind: nodeFile, file: r.FileID}
				if f, ok, _ := s.GetFile(r.FileID); ok {
					g.Files[r.FileID] = f
				}
				if !visited[fref] {
					visited[fref] = true
					queue = append(queue, queued{ref: fref, depth: cur.depth + 1})
				}
			}

			parents := append([]model.ForkEdge(nil), forksByChild[cur.ref.proc]...)
			sort.Slice(parents, func(i, j int) bool {
				pi, pj := procsByID[parents[i].ParentID], procsByID[parents[j].ParentID]
				return pi.Start < pj.Start
			})
			for _, fe := range parents {
				key := string(fe.ParentID) + "|" + string(fe.ChildID)
				if !addedFork[key] {
					addedFork[key] = true
					g.ForkEdges = append(g.ForkEdges, fe)
				}
				pref := nodeRef{kind: nodeProcess, proc: fe.ParentID}
				if p, ok := procsByID[fe.ParentID]; ok {
					g.Processes[fe.ParentID] = p
				}
				if !visited[pref] {
					visited[pref] = true
					queue = append(queue, queued{ref: pref, depth: cur.depth + 1})
				}
			}
		}
	}

	return g, nil
}
