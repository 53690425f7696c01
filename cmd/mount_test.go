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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	repeatfsconfig "github.com/toniwestbrook/repeatfs/internal/config"
)

func TestLoadMountConfigEmptyDirUsesDefault(t *testing.T) {
	doc, err := loadMountConfig("")
	require.NoError(t, err)
	require.Equal(t, repeatfsconfig.Default(), doc)
}

func TestLoadMountConfigMissingFileUsesDefault(t *testing.T) {
	dir := t.TempDir()
	doc, err := loadMountConfig(dir)
	require.NoError(t, err)
	require.Equal(t, repeatfsconfig.Default(), doc)
}

func TestLoadMountConfigParsesExistingFile(t *testing.T) {
	dir := t.TempDir()
	contents := "plugins=audit\n\naudit.log_path=/tmp/audit.log\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repeatfs.conf"), []byte(contents), 0o644))

	doc, err := loadMountConfig(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"audit"}, doc.Plugins)
	require.Equal(t, "/tmp/audit.log", doc.PluginConfig["audit"]["log_path"])
}

func TestBuildDispatcherNoPluginsReturnsNil(t *testing.T) {
	dispatcher, err := buildDispatcher(&repeatfsconfig.Document{})
	require.NoError(t, err)
	require.Nil(t, dispatcher)
}

func TestBuildDispatcherUnknownPluginErrors(t *testing.T) {
	_, err := buildDispatcher(&repeatfsconfig.Document{Plugins: []string{"nope"}})
	require.Error(t, err)
}

func TestBuildDispatcherKnownPlugin(t *testing.T) {
	doc := &repeatfsconfig.Document{
		Plugins:      []string{"audit"},
		PluginConfig: map[string]map[string]string{"audit": {"log_path": "/tmp/a.log"}},
	}
	dispatcher, err := buildDispatcher(doc)
	require.NoError(t, err)
	require.NotNil(t, dispatcher)
	require.Equal(t, []string{"audit"}, dispatcher.Names())
}
