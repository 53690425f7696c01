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

package procinfo

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashExecutableIsDeterministicSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-exe")
	content := []byte("#!/bin/sh\necho hi\n")
	require.NoError(t, os.WriteFile(path, content, 0o755))

	got, err := HashExecutable(path)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(sum[:]), got)

	again, err := HashExecutable(path)
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestHashExecutableMissingFile(t *testing.T) {
	_, err := HashExecutable(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
