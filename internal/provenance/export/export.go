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

// Package export implements the provenance export/import document format
// (spec §6's "Provenance export (JSON)") and the DOT formatter behind the
// F.provenance.html synthetic VDF. Byte-exact stability of the JSON schema
// across versions is required for replication portability, so field names
// here are part of the wire contract and must not be renamed casually.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/toniwestbrook/repeatfs/internal/provenance/graph"
	"github.com/toniwestbrook/repeatfs/internal/provenance/model"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
)

// FileRecord is one entry of the exported document's "file" map.
type FileRecord struct {
	Path      string   `json:"path"`
	Hash      string   `json:"hash,omitempty"`
	Size      int64    `json:"size"`
	Mtime     float64  `json:"mtime"`
	IsVDF     bool     `json:"is_vdf"`
	Unlinked  *float64 `json:"unlinked_at,omitempty"`
	EscapedAt *float64 `json:"escaped_at,omitempty"`
}

// ProcessRecord is one entry of the exported document's "process" map. Field
// names match spec §6 exactly: phost, pstart, pid, parent_pid, parent_start,
// cmd, exe, hash, cwd, env.
type ProcessRecord struct {
	Host        string   `json:"phost"`
	Start       float64  `json:"pstart"`
	PID         int      `json:"pid"`
	ParentPID   int      `json:"parent_pid,omitempty"`
	ParentStart float64  `json:"parent_start,omitempty"`
	Cmd         []string `json:"cmd"`
	Exe         string   `json:"exe"`
	Hash        string   `json:"hash,omitempty"`
	Cwd         string   `json:"cwd"`
	Env         []string `json:"env,omitempty"`
}

// IORecord is one entry of the exported document's "read" or "write" map.
type IORecord struct {
	Process   string  `json:"process"`
	File      string  `json:"file"`
	OpenTime  float64 `json:"open"`
	CloseTime float64 `json:"close"`
	Bytes     int64   `json:"bytes"`
	Seq       uint64  `json:"seq"`
	Truncated bool    `json:"truncated,omitempty"`
}

// Document is the full exported provenance document.
type Document struct {
	File    map[string]FileRecord    `json:"file"`
	Process map[string]ProcessRecord `json:"process"`
	Read    map[string]IORecord      `json:"read"`
	Write   map[string]IORecord      `json:"write"`
}

// pidForProcess recovers the host PID that appeared in a ParentID string
// lookup; processes are keyed in the document by their ProcessID string, so
// cross-references (parent_pid/parent_start) are resolved against the
// in-memory process map rather than re-parsing the ID.
func pidForProcess(procs map[model.ProcessID]model.Process, id model.ProcessID) (int, float64, bool) {
	p, ok := procs[id]
	if !ok {
		return 0, 0, false
	}
	return p.PID, p.Start, true
}

// Export walks the reverse-BFS sub-graph upstream of target (via
// internal/provenance/graph) and renders it as a Document.
func Export(s *store.Store, target model.FileID, maxDepth int) (*Document, error) {
	g, err := graph.Query(s, target, maxDepth)
	if err != nil {
		return nil, err
	}
	return FromGraph(g), nil
}

// FromGraph renders an already-computed sub-graph as a Document, without
// touching the store again.
func FromGraph(g *graph.Graph) *Document {
	doc := &Document{
		File:    map[string]FileRecord{},
		Process: map[string]ProcessRecord{},
		Read:    map[string]IORecord{},
		Write:   map[string]IORecord{},
	}

	for id, f := range g.Files {
		doc.File[string(id)] = FileRecord{
			Path:      f.Path,
			Hash:      f.Hash,
			Size:      f.Size,
			Mtime:     f.Mtime,
			IsVDF:     f.IsVDF,
			Unlinked:  f.UnlinkedAt,
			EscapedAt: f.EscapedAt,
		}
	}

	for id, p := range g.Processes {
		rec := ProcessRecord{
			Host:  p.Hostname,
			Start: p.Start,
			PID:   p.PID,
			Cmd:   p.Argv,
			Exe:   p.Exe,
			Hash:  p.ExeHash,
			Cwd:   p.Cwd,
			Env:   p.Env,
		}
		if ppid, pstart, ok := pidForProcess(g.Processes, p.ParentID); ok {
			rec.ParentPID = ppid
			rec.ParentStart = pstart
		}
		doc.Process[string(id)] = rec
	}

	for _, io := range g.IOEdges {
		rec := IORecord{
			Process:   string(io.ProcessID),
			File:      string(io.FileID),
			OpenTime:  io.OpenTime,
			CloseTime: io.CloseTime,
			Bytes:     io.Bytes,
			Seq:       io.Seq,
			Truncated: io.Truncated,
		}
		key := string(io.ID)
		if io.Direction == model.Read {
			doc.Read[key] = rec
		} else {
			doc.Write[key] = rec
		}
	}

	return doc
}

// MarshalJSON serializes the document as indented JSON with sorted map keys
// (Go's encoding/json sorts map keys on output).
func (d *Document) MarshalJSON() ([]byte, error) {
	type alias Document
	return json.MarshalIndent((*alias)(d), "", "  ")
}

// Parse decodes a provenance document from its exported JSON form.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing provenance document: %w", err)
	}
	return &doc, nil
}

// olderWins applies spec §4.3's import merge-conflict policy: the imported
// entity wins over whatever is already in the store only if its timestamp
// is strictly older, with ties broken lexicographically on the full ID.
func olderWins(existingID string, existingTS float64, importedID string, importedTS float64) bool {
	if importedTS != existingTS {
		return importedTS < existingTS
	}
	return importedID < existingID
}

// Import writes every entity in doc into s. Files and processes are written
// before the IO intervals that reference them, satisfying the store's
// existence invariant regardless of map iteration order. On conflict (an ID
// already present in s), the existing record is kept unless the imported
// one is strictly older, per spec §4.3.
func Import(s *store.Store, doc *Document) error {
	for id, f := range doc.File {
		rec := model.File{
			ID:         model.FileID(id),
			Path:       f.Path,
			Hash:       f.Hash,
			Size:       f.Size,
			Mtime:      f.Mtime,
			IsVDF:      f.IsVDF,
			UnlinkedAt: f.Unlinked,
			EscapedAt:  f.EscapedAt,
		}
		if existing, ok, err := s.GetFile(rec.ID); err != nil {
			return err
		} else if ok && !olderWins(string(existing.ID), existing.Mtime, string(rec.ID), rec.Mtime) {
			continue
		}
		if err := s.PutFile(rec); err != nil {
			return err
		}
	}

	for id, p := range doc.Process {
		proc := model.Process{
			ID:       model.ProcessID(id),
			Hostname: p.Host,
			Start:    p.Start,
			PID:      p.PID,
			Exe:      p.Exe,
			ExeHash:  p.Hash,
			Argv:     p.Cmd,
			Env:      p.Env,
			Cwd:      p.Cwd,
		}
		if p.ParentPID != 0 {
			proc.ParentID = model.NewProcessID(p.Host, p.ParentStart, p.ParentPID)
		}
		if existing, ok, err := s.GetProcess(proc.ID); err != nil {
			return err
		} else if ok && !olderWins(string(existing.ID), existing.Start, string(proc.ID), proc.Start) {
			continue
		}
		if err := s.PutProcess(proc); err != nil {
			return err
		}
	}

	for id, p := range doc.Process {
		if p.ParentPID == 0 {
			continue
		}
		parentID := model.NewProcessID(p.Host, p.ParentStart, p.ParentPID)
		if _, ok, err := s.GetProcess(parentID); err == nil && ok {
			if err := s.PutForkEdge(model.ForkEdge{ParentID: parentID, ChildID: model.ProcessID(id)}); err != nil {
				return err
			}
		}
	}

	importIO := func(rows map[string]IORecord, dir model.Direction) error {
		for id, rec := range rows {
			if err := s.PutIOInterval(model.IOInterval{
				ID:        model.IOIntervalID(id),
				ProcessID: model.ProcessID(rec.Process),
				FileID:    model.FileID(rec.File),
				Direction: dir,
				Seq:       rec.Seq,
				OpenTime:  rec.OpenTime,
				CloseTime: rec.CloseTime,
				Bytes:     rec.Bytes,
				Truncated: rec.Truncated,
			}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := importIO(doc.Read, model.Read); err != nil {
		return err
	}
	if err := importIO(doc.Write, model.Write); err != nil {
		return err
	}

	return nil
}

// DOT renders the document as a Graphviz DOT graph: one node per file and
// process, and one edge per IO interval (reversed so arrows point from
// producer to consumer). Parent/child process links are not drawn. This
// backs the F.provenance.html
// synthetic VDF, which wraps the rendered graph in a minimal HTML page.
func DOT(doc *Document) string {
	var b strings.Builder
	b.WriteString("digraph provenance {\n")
	b.WriteString("  rankdir=LR;\n")

	fileIDs := sortedKeys(doc.File)
	for _, id := range fileIDs {
		f := doc.File[id]
		b.WriteString(fmt.Sprintf("  %q [shape=box,label=%q];\n", id, f.Path))
	}
	procIDs := sortedKeys(doc.Process)
	for _, id := range procIDs {
		p := doc.Process[id]
		label := p.Exe
		if label == "" {
			label = fmt.Sprintf("pid %d", p.PID)
		}
		b.WriteString(fmt.Sprintf("  %q [shape=ellipse,label=%q];\n", id, label))
	}

	for _, rows := range []map[string]IORecord{doc.Read, doc.Write} {
		ids := sortedKeys(rows)
		for _, id := range ids {
			rec := rows[id]
			if isWrite(doc, id) {
				b.WriteString(fmt.Sprintf("  %q -> %q;\n", rec.Process, rec.File))
			} else {
				b.WriteString(fmt.Sprintf("  %q -> %q;\n", rec.File, rec.Process))
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func isWrite(doc *Document, id string) bool {
	_, ok := doc.Write[id]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
