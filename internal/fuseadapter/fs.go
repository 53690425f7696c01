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

// Package fuseadapter implements the FUSE bridge: a fuseutil.FileSystem
// that translates POSIX operations into calls against the path
// translator, the VDF resolver/executor, and the provenance tracker
// (components C1/C4/C5/C6), and maps their results back to the errno
// vocabulary the kernel expects. The adapter itself holds no provenance or
// VDF logic beyond dispatch and request/response marshaling.
package fuseadapter

import (
	"context"
	"os"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/toniwestbrook/repeatfs/clock"
	"github.com/toniwestbrook/repeatfs/internal/pathtranslator"
	"github.com/toniwestbrook/repeatfs/internal/plugin"
	"github.com/toniwestbrook/repeatfs/internal/provenance/store"
	"github.com/toniwestbrook/repeatfs/internal/provenance/tracker"
	"github.com/toniwestbrook/repeatfs/internal/vdf"
)

// FileSystem is the fuseutil.FileSystem implementation RepeatFS mounts.
// Embedding NotImplementedFileSystem means xattr and fallocate ops (which
// this filesystem does not support against the backing passthrough store)
// default to ENOSYS without each needing its own stub.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	translator   *pathtranslator.Translator
	resolver     *vdf.Resolver
	executor     *vdf.Executor
	tracker      *tracker.Tracker
	store        *store.Store
	dispatcher   *plugin.Dispatcher
	clock        clock.Clock
	hostnameName string

	inodes *inodeTable

	mu          sync.Mutex
	dirHandles  map[fuseops.HandleID]*dirHandle
	fileHandles map[fuseops.HandleID]*fileHandle
	nextHandle  uint64
	handleSeq   uint64
}

// Config bundles the components a mount wires into the adapter.
type Config struct {
	Target     string
	Hostname   string
	Translator *pathtranslator.Translator
	Resolver   *vdf.Resolver
	Executor   *vdf.Executor
	Tracker    *tracker.Tracker
	Store      *store.Store
	Dispatcher *plugin.Dispatcher
	Clock      clock.Clock
}

// New builds a FileSystem rooted at cfg.Target. Tracker and Dispatcher may
// be nil: a nil Tracker runs the mount in VDF-only (degraded provenance)
// mode, and a nil Dispatcher runs with no plugins configured.
func New(cfg Config) *FileSystem {
	c := cfg.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	hostname := cfg.Hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}
	return &FileSystem{
		translator:   cfg.Translator,
		resolver:     cfg.Resolver,
		executor:     cfg.Executor,
		tracker:      cfg.Tracker,
		store:        cfg.Store,
		dispatcher:   cfg.Dispatcher,
		clock:        c,
		hostnameName: hostname,
		inodes:       newInodeTable(cfg.Target),
		dirHandles:   map[fuseops.HandleID]*dirHandle{},
		fileHandles:  map[fuseops.HandleID]*fileHandle{},
	}
}

func (fs *FileSystem) mintHandle() fuseops.HandleID {
	return fuseops.HandleID(atomic.AddUint64(&fs.handleSeq, 1))
}

// virtualChildPath joins a parent's virtual path with a child name,
// producing the mount-relative path pathtranslator.Resolve expects.
func virtualChildPath(parentVirtual, name string) string {
	return path.Join(parentVirtual, name)
}

func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 4096
	op.IoSize = 1 << 20
	op.Blocks = 1 << 30
	op.BlocksFree = 1 << 29
	op.BlocksAvailable = 1 << 29
	op.Inodes = 1 << 30
	op.InodesFree = 1 << 29
	return nil
}

// LookUpInode resolves (parent, name) to a child inode, classifying the
// result through the path translator: a real child, a synthetic "+"
// directory, or a VDF leaf.
func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, ok := fs.inodes.get(op.Parent)
	if !ok {
		return toErrno(os.ErrNotExist)
	}

	childVirtual := virtualChildPath(parent.virtualPath, op.Name)
	resolved, err := fs.translator.Resolve(childVirtual)
	if err != nil {
		return toErrno(err)
	}

	attr, err := fs.attributesFor(resolved)
	if err != nil {
		return toErrno(err)
	}

	rec := fs.inodes.mint(childVirtual, resolved)
	op.Entry.Child = rec.id
	op.Entry.Attributes = attr
	return nil
}

// GetInodeAttributes reports the attributes for an already-minted inode.
func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	rec, ok := fs.inodes.get(op.Inode)
	if !ok {
		return toErrno(os.ErrNotExist)
	}
	attr, err := fs.attributesFor(rec.resolved)
	if err != nil {
		return toErrno(err)
	}
	op.Attributes = attr
	return nil
}

// SetInodeAttributes applies truncate/chmod/utimens to a real backing
// path. Synthetic paths (VDF leaves and "+" directories) are never mutated:
// the request is ignored and their current attributes are returned without
// an error.
func (fs *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	rec, ok := fs.inodes.get(op.Inode)
	if !ok {
		return toErrno(os.ErrNotExist)
	}
	if rec.resolved.Kind != pathtranslator.KindReal {
		attr, err := fs.attributesFor(rec.resolved)
		if err != nil {
			return toErrno(err)
		}
		op.Attributes = attr
		return nil
	}

	if op.Size != nil {
		if err := os.Truncate(rec.resolved.RealPath, int64(*op.Size)); err != nil {
			return toErrno(err)
		}
	}
	if op.Mode != nil {
		if err := os.Chmod(rec.resolved.RealPath, *op.Mode); err != nil {
			return toErrno(err)
		}
	}
	if op.Atime != nil || op.Mtime != nil {
		fi, err := os.Lstat(rec.resolved.RealPath)
		if err != nil {
			return toErrno(err)
		}
		atime, mtime := fi.ModTime(), fi.ModTime()
		if op.Atime != nil {
			atime = *op.Atime
		}
		if op.Mtime != nil {
			mtime = *op.Mtime
		}
		if err := os.Chtimes(rec.resolved.RealPath, atime, mtime); err != nil {
			return toErrno(err)
		}
	}

	attr, err := fs.attributesFor(rec.resolved)
	if err != nil {
		return toErrno(err)
	}
	op.Attributes = attr
	return nil
}

func (fs *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.inodes.forget(op.Inode, op.N)
	return nil
}

func (fs *FileSystem) BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error {
	for _, entry := range op.Entries {
		fs.inodes.forget(entry.Inode, entry.N)
	}
	return nil
}

// MkDir creates a real directory. Synthetic parents reject directory
// creation: there is no way to mkdir inside a "+" namespace.
func (fs *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parent, ok := fs.inodes.get(op.Parent)
	if !ok {
		return toErrno(os.ErrNotExist)
	}
	if parent.resolved.Kind != pathtranslator.KindReal {
		return toErrno(os.ErrPermission)
	}

	childVirtual := virtualChildPath(parent.virtualPath, op.Name)
	realPath := fs.translator.Real(childVirtual)
	if err := os.Mkdir(realPath, op.Mode); err != nil {
		return toErrno(err)
	}

	resolved, err := fs.translator.Resolve(childVirtual)
	if err != nil {
		return toErrno(err)
	}
	attr, err := fs.attributesFor(resolved)
	if err != nil {
		return toErrno(err)
	}
	rec := fs.inodes.mint(childVirtual, resolved)
	op.Entry.Child = rec.id
	op.Entry.Attributes = attr
	return nil
}

// RmDir removes a real, empty directory.
func (fs *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	parent, ok := fs.inodes.get(op.Parent)
	if !ok {
		return toErrno(os.ErrNotExist)
	}
	childVirtual := virtualChildPath(parent.virtualPath, op.Name)
	realPath := fs.translator.Real(childVirtual)
	if err := os.Remove(realPath); err != nil {
		return toErrno(err)
	}
	fs.inodes.forgetPath(childVirtual)
	return nil
}

func (fs *FileSystem) Destroy() {
	if fs.tracker != nil {
		_ = fs.tracker.CloseUnmount()
	}
}

// attributesFor reports the attributes the kernel should see for a
// resolved virtual path, dispatching on its kind: a real stat, a
// synthesized "+" directory, or the current size of a VDF leaf (which may
// still be Building).
func (fs *FileSystem) attributesFor(resolved pathtranslator.Resolved) (fuseops.InodeAttributes, error) {
	switch resolved.Kind {
	case pathtranslator.KindReal:
		return statInode(resolved.RealPath)
	case pathtranslator.KindSyntheticDir:
		return fs.syntheticDirAttributes(), nil
	case pathtranslator.KindVDFLeaf:
		size, err := fs.vdfLeafSize(resolved)
		if err != nil {
			return fuseops.InodeAttributes{}, err
		}
		return fs.vdfLeafAttributes(size), nil
	default:
		return fuseops.InodeAttributes{}, os.ErrNotExist
	}
}

// dirHandle holds a directory's entry listing for the lifetime of one
// OpenDir/ReadDir*/ReleaseDirHandle sequence, so that paging across
// multiple ReadDir calls (each bounded by the kernel's buffer size) sees a
// stable snapshot instead of a tree that may be mutating underneath it.
type dirHandle struct {
	entries []fuseutil.Dirent
}

func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	rec, ok := fs.inodes.get(op.Inode)
	if !ok {
		return toErrno(os.ErrNotExist)
	}
	entries, err := fs.listDirectory(rec)
	if err != nil {
		return toErrno(err)
	}

	fs.mu.Lock()
	op.Handle = fs.mintHandle()
	fs.dirHandles[op.Handle] = &dirHandle{entries: entries}
	fs.mu.Unlock()
	return nil
}

func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	dh, ok := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return toErrno(os.ErrNotExist)
	}

	if int(op.Offset) > len(dh.entries) {
		return nil
	}
	for _, d := range dh.entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// ReadDirPlus is not implemented and returns ENOSYS. The mount never
// enables readdirplus (see mount.go), so the kernel lists directories
// through ReadDir instead.
func (fs *FileSystem) ReadDirPlus(ctx context.Context, op *fuseops.ReadDirPlusOp) error {
	return syscall.ENOSYS
}

func (fs *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	return nil
}

// listDirectory builds the entry list for rec, augmenting a real
// directory's real children with one "<name>+" synthetic entry per
// non-directory child, and serving a synthetic directory's listing
// straight from the VDF resolver.
func (fs *FileSystem) listDirectory(rec *inodeRecord) ([]fuseutil.Dirent, error) {
	switch rec.resolved.Kind {
	case pathtranslator.KindSyntheticDir:
		return fs.listSyntheticDirectory(rec), nil
	case pathtranslator.KindReal:
		return fs.listRealDirectory(rec)
	default:
		return nil, os.ErrInvalid
	}
}

func (fs *FileSystem) listRealDirectory(rec *inodeRecord) ([]fuseutil.Dirent, error) {
	children, err := os.ReadDir(rec.resolved.RealPath)
	if err != nil {
		return nil, err
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

	var dirents []fuseutil.Dirent
	var offset fuseops.DirOffset
	for _, child := range children {
		offset++
		childType := fuseutil.DT_File
		if child.IsDir() {
			childType = fuseutil.DT_Directory
		} else if child.Type()&os.ModeSymlink != 0 {
			childType = fuseutil.DT_Link
		}
		childVirtual := virtualChildPath(rec.virtualPath, child.Name())
		dirents = append(dirents, fuseutil.Dirent{
			Offset: offset,
			Inode:  fs.inodes.mint(childVirtual, pathtranslator.Resolved{Kind: pathtranslator.KindReal, RealPath: fs.translator.Real(childVirtual)}).id,
			Name:   child.Name(),
			Type:   childType,
		})
		if childType != fuseutil.DT_Directory {
			offset++
			plusName := child.Name() + pathtranslator.Suffix
			plusVirtual := virtualChildPath(rec.virtualPath, plusName)
			resolved, err := fs.translator.Resolve(plusVirtual)
			if err != nil {
				continue
			}
			dirents = append(dirents, fuseutil.Dirent{
				Offset: offset,
				Inode:  fs.inodes.mint(plusVirtual, resolved).id,
				Name:   plusName,
				Type:   fuseutil.DT_Directory,
			})
		}
	}
	return dirents, nil
}

func (fs *FileSystem) listSyntheticDirectory(rec *inodeRecord) []fuseutil.Dirent {
	base := rec.resolved.Bases[len(rec.resolved.Bases)-1]
	names := fs.resolver.SyntheticEntries(base)

	var dirents []fuseutil.Dirent
	for i, name := range names {
		leafVirtual := virtualChildPath(rec.virtualPath, name)
		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode: fs.inodes.mint(leafVirtual, pathtranslator.Resolved{
				Kind:     pathtranslator.KindVDFLeaf,
				RealPath: rec.resolved.RealPath,
				Bases:    rec.resolved.Bases,
				LeafName: name,
			}).id,
			Name: name,
			Type: fuseutil.DT_File,
		})
	}
	return dirents
}
