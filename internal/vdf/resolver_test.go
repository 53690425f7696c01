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

package vdf

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

func fastqRule() Rule {
	return Rule{
		Name:  "fasta",
		Match: regexp.MustCompile(`\.fastq$`),
		Ext:   ".fasta",
		Cmd:   "seqtk seq -A {input}",
	}
}

func countRule() Rule {
	return Rule{
		Name:  "count",
		Match: regexp.MustCompile(`\.fasta$`),
		Ext:   ".count",
		Cmd:   "grep -c '>' {input}",
	}
}

func TestSyntheticEntriesIncludesProvenanceAndMatchingRules(t *testing.T) {
	r := New([]Rule{fastqRule()}, 0)
	entries := r.SyntheticEntries("x.fastq")
	require.Contains(t, entries, "x.fastq.provenance.json")
	require.Contains(t, entries, "x.fastq.provenance.html")
	require.Contains(t, entries, "x.fastq.fasta")
}

func TestResolveSimpleRule(t *testing.T) {
	r := New([]Rule{fastqRule()}, 0)
	res, err := r.Resolve([]string{"x.fastq"}, "x.fastq.fasta")
	require.NoError(t, err)
	require.Equal(t, "fasta", res.Rule.Name)
	require.Equal(t, "x.fastq", res.Base)
}

func TestResolveChainedRule(t *testing.T) {
	r := New([]Rule{fastqRule(), countRule()}, 0)
	res, err := r.Resolve([]string{"x.fastq", "x.fastq.fasta"}, "x.fastq.fasta.count")
	require.NoError(t, err)
	require.Equal(t, "count", res.Rule.Name)
}

func TestResolveUnknownLeafIsNotFound(t *testing.T) {
	r := New([]Rule{fastqRule()}, 0)
	_, err := r.Resolve([]string{"x.fastq"}, "x.fastq.bam")
	require.ErrorIs(t, err, repeatfserr.NotFound)
}

func TestResolveChainTooDeep(t *testing.T) {
	r := New([]Rule{fastqRule()}, 2)
	bases := []string{"a", "b", "c"}
	_, err := r.Resolve(bases, "c.fasta")
	require.ErrorIs(t, err, repeatfserr.VdfChainTooDeep)
}
