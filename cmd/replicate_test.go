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

package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toniwestbrook/repeatfs/internal/replicate"
)

func TestExpandSetFalseReturnsNil(t *testing.T) {
	schedule := []replicate.Step{{ID: "a"}, {ID: "b"}}
	expand, err := expandSet(false, schedule)
	require.NoError(t, err)
	require.Nil(t, expand)
}

func TestExpandSetTrueExpandsEveryStep(t *testing.T) {
	schedule := []replicate.Step{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	expand, err := expandSet(true, schedule)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, expand)
}

func TestExpandSetTrueOnEmptySchedule(t *testing.T) {
	expand, err := expandSet(true, nil)
	require.NoError(t, err)
	require.Empty(t, expand)
}
