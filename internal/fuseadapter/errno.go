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
	"errors"
	"os"
	"syscall"

	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

// toErrno converts an error from a lower layer into the syscall.Errno the
// kernel expects back from a fuseutil.FileSystem method. jacobsa/fuse
// forwards any non-nil, non-errno error to the kernel as EIO, so every
// error that crosses this boundary has to be classified here rather than
// passed through raw.
func toErrno(err error) error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, repeatfserr.NotFound):
		return syscall.ENOENT
	case os.IsNotExist(err):
		return syscall.ENOENT
	case errors.Is(err, repeatfserr.PermissionDenied):
		return syscall.EACCES
	case os.IsPermission(err):
		return syscall.EACCES
	case errors.Is(err, repeatfserr.VdfChainTooDeep):
		return syscall.ELOOP
	case errors.Is(err, repeatfserr.StoreUnavailable):
		return syscall.EIO
	case errors.Is(err, repeatfserr.IoError):
		return syscall.EIO
	case os.IsExist(err):
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}
