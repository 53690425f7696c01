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
	"context"
	"fmt"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
)

// MountOptions collects the knobs a caller may want to set on the kernel
// mount itself, separately from the FileSystem's own Config.
type MountOptions struct {
	ReadOnly    bool
	AllowOther  bool
	FuseOptions []string // raw "-o" style options, e.g. "allow_root"
	VolumeName  string
}

// Mount creates a FileSystem over cfg and mounts it at mountPoint, blocking
// the caller only long enough to complete the mount handshake. The returned
// *fuse.MountedFileSystem's Join method blocks until the filesystem is
// unmounted.
func Mount(ctx context.Context, mountPoint string, cfg Config, opts MountOptions) (*fuse.MountedFileSystem, error) {
	server := fuseutil.NewFileSystemServer(New(cfg))

	mountCfg := &fuse.MountConfig{
		FSName:                  "repeatfs",
		Subtype:                 "repeatfs",
		VolumeName:              volumeName(opts),
		Options:                 parseOptions(opts.FuseOptions, opts.ReadOnly, opts.AllowOther),
		EnableParallelDirOps:    true,
		DisableWritebackCaching: false,
		// ReadDirPlus is left disabled: the adapter does not implement it
		// (see fs.go), and the kernel falls back to plain ReadDir plus a
		// LookUpInode per entry, which is the mode this filesystem is built
		// for.
		EnableReaddirplus: false,
	}

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mountPoint, err)
	}
	return mfs, nil
}

func volumeName(opts MountOptions) string {
	if opts.VolumeName != "" {
		return opts.VolumeName
	}
	return "repeatfs"
}

func parseOptions(raw []string, readOnly, allowOther bool) map[string]string {
	parsed := map[string]string{}
	for _, o := range raw {
		k, v := splitOption(o)
		parsed[k] = v
	}
	if readOnly {
		parsed["ro"] = ""
	}
	if allowOther {
		parsed["allow_other"] = ""
	}
	return parsed
}

func splitOption(o string) (string, string) {
	for i := 0; i < len(o); i++ {
		if o[i] == '=' {
			return o[:i], o[i+1:]
		}
	}
	return o, ""
}
