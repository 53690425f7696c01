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

package fuseadapter

import (
	"sync"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/toniwestbrook/repeatfs/internal/pathtranslator"
)

// inodeRecord is everything the adapter remembers about one minted inode
// between LookUpInode and the matching ForgetInode/BatchForget.
type inodeRecord struct {
	id          fuseops.InodeID
	virtualPath string // mount-relative, no leading slash; "" for the root
	resolved    pathtranslator.Resolved
	lookupCount uint64
}

// inodeTable mints and retires fuseops.InodeID values for virtual paths.
// RepeatFS mirrors a real directory tree rather than an object store, so
// the virtual path itself is a stable identity: there is no independent
// backing generation number to mint against the way gcsfuse mints inodes
// against GCS object generations, so this table keys directly on path.
type inodeTable struct {
	mu     sync.Mutex
	byID   map[fuseops.InodeID]*inodeRecord
	byPath map[string]fuseops.InodeID
	nextID uint64
}

func newInodeTable(target string) *inodeTable {
	t := &inodeTable{
		byID:   map[fuseops.InodeID]*inodeRecord{},
		byPath: map[string]fuseops.InodeID{},
		nextID: uint64(fuseops.RootInodeID),
	}
	root := &inodeRecord{
		id:          fuseops.RootInodeID,
		virtualPath: "",
		resolved:    pathtranslator.Resolved{Kind: pathtranslator.KindReal, RealPath: target},
		lookupCount: 1,
	}
	t.byID[root.id] = root
	t.byPath[""] = root.id
	return t
}

func (t *inodeTable) get(id fuseops.InodeID) (*inodeRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	return rec, ok
}

// mint returns the existing record for virtualPath if one is already
// live, incrementing its lookup count, or mints a fresh inode bound to
// resolved.
func (t *inodeTable) mint(virtualPath string, resolved pathtranslator.Resolved) *inodeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byPath[virtualPath]; ok {
		rec := t.byID[id]
		rec.lookupCount++
		rec.resolved = resolved
		return rec
	}

	t.nextID++
	rec := &inodeRecord{
		id:          fuseops.InodeID(t.nextID),
		virtualPath: virtualPath,
		resolved:    resolved,
		lookupCount: 1,
	}
	t.byID[rec.id] = rec
	t.byPath[virtualPath] = rec.id
	return rec
}

// forget drops n references from id's lookup count, retiring it entirely
// once the count reaches zero, per the ForgetInodeOp/BatchForgetOp
// contract.
func (t *inodeTable) forget(id fuseops.InodeID, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	if !ok {
		return
	}
	if n >= rec.lookupCount {
		delete(t.byID, id)
		delete(t.byPath, rec.virtualPath)
		return
	}
	rec.lookupCount -= n
}

// rename moves an already-minted inode from oldPath to newPath in place,
// so outstanding file handles and later lookups see the new location
// instead of ENOENT.
func (t *inodeTable) rename(oldPath, newPath string, resolved pathtranslator.Resolved) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byPath[oldPath]
	if !ok {
		return
	}
	delete(t.byPath, oldPath)
	rec := t.byID[id]
	rec.virtualPath = newPath
	rec.resolved = resolved
	t.byPath[newPath] = id
}

// forgetPath drops the table's record of virtualPath without waiting for
// a kernel Forget, used after Unlink/RmDir remove the last link: the
// kernel will still send ForgetInode eventually, which is a harmless no-op
// against an already-missing ID.
func (t *inodeTable) forgetPath(virtualPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byPath[virtualPath]
	if !ok {
		return
	}
	delete(t.byPath, virtualPath)
	delete(t.byID, id)
}
