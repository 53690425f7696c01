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

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
# a comment
plugins=audit, stats

[entry]
match=\.fastq$
ext=.fasta
cmd=seqtk seq -A {input}

[entry]
match=\.bam$
ext=.sam
cmd=samtools view {input}

audit.log_path=/var/log/repeatfs-audit.log
`

func TestParseExtractsPluginsRulesAndPluginConfig(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Equal(t, []string{"audit", "stats"}, doc.Plugins)
	require.Len(t, doc.Rules, 2)
	require.Equal(t, ".fasta", doc.Rules[0].Ext)
	require.True(t, doc.Rules[0].Match.MatchString("reads.fastq"))
	require.Equal(t, "seqtk seq -A {input}", doc.Rules[0].Cmd)
	require.Equal(t, ".sam", doc.Rules[1].Ext)

	require.Equal(t, "/var/log/repeatfs-audit.log", doc.PluginConfig["audit"]["log_path"])
}

func TestParseRejectsEntryMissingCmd(t *testing.T) {
	_, err := Parse(strings.NewReader("[entry]\nmatch=\\.fastq$\next=.fasta\n"))
	require.Error(t, err)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("not-a-key-value-pair\n"))
	require.Error(t, err)
}

func TestDefaultRenderRoundTrips(t *testing.T) {
	doc := Default()
	rendered := Render(doc)

	reparsed, err := Parse(strings.NewReader(rendered))
	require.NoError(t, err)
	require.Len(t, reparsed.Rules, len(doc.Rules))
	require.Equal(t, doc.Rules[0].Ext, reparsed.Rules[0].Ext)
}
