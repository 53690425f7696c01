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
	"os"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
)

// attributesFromStat converts the result of a real stat(2) call into the
// attributes FUSE reports to the kernel.
func attributesFromStat(fi os.FileInfo) fuseops.InodeAttributes {
	attr := fuseops.InodeAttributes{
		Size:  uint64(fi.Size()),
		Nlink: 1,
		Mode:  fi.Mode(),
		Mtime: fi.ModTime(),
		Atime: fi.ModTime(),
		Ctime: fi.ModTime(),
		Uid:   uint32(os.Getuid()),
		Gid:   uint32(os.Getgid()),
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		attr.Nlink = uint32(st.Nlink)
		attr.Uid = st.Uid
		attr.Gid = st.Gid
		attr.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		attr.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return attr
}

// statInode computes the attributes the kernel should see for a real
// backing path. It is the shared lookup path for LookUpInode and
// GetInodeAttributes against KindReal inodes.
func statInode(realPath string) (fuseops.InodeAttributes, error) {
	fi, err := os.Lstat(realPath)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return attributesFromStat(fi), nil
}

// syntheticDirAttributes is reported for a "<base>+" directory: read-only,
// synthesized, and not backed by any real inode.
func (fs *FileSystem) syntheticDirAttributes() fuseops.InodeAttributes {
	now := fs.clock.Now()
	return fuseops.InodeAttributes{
		Size:  0,
		Nlink: 1,
		Mode:  os.ModeDir | 0555,
		Mtime: now,
		Atime: now,
		Ctime: now,
		Uid:   uint32(os.Getuid()),
		Gid:   uint32(os.Getgid()),
	}
}

// vdfLeafAttributes is reported for a VDF leaf file. size reflects the
// bytes currently produced by its derivation, which grows while the leaf
// is still Building.
func (fs *FileSystem) vdfLeafAttributes(size int64) fuseops.InodeAttributes {
	now := fs.clock.Now()
	return fuseops.InodeAttributes{
		Size:  uint64(size),
		Nlink: 1,
		Mode:  0444,
		Mtime: now,
		Atime: now,
		Ctime: now,
		Uid:   uint32(os.Getuid()),
		Gid:   uint32(os.Getgid()),
	}
}
