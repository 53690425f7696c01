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

package repeatfserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedErrorsMatchSentinel(t *testing.T) {
	wrapped := fmt.Errorf("resolving %q: %w", "a.txt+", NotFound)
	assert.True(t, errors.Is(wrapped, NotFound))
	assert.False(t, errors.Is(wrapped, IoError))
}

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		NotFound, PermissionDenied, IoError, VdfChainTooDeep,
		StoreUnavailable, VersionMismatch, ProcessFailed, ScheduleCyclic,
	}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}
