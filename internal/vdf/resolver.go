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

// Package vdf implements the VDF Resolver and Executor & Cache (components
// C5 and C6): classifying synthetic paths against configured rules,
// chaining VDFs, and materializing derivation output on demand.
package vdf

import (
	"fmt"
	"sort"

	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

// ProvenanceJSONEntry and ProvenanceHTMLEntry are the two system-provided
// synthetic leaves present in every "<file>+" directory, alongside whatever
// configured rules match, per spec §6's synthetic namespace description.
const (
	ProvenanceJSONEntry = ".provenance.json"
	ProvenanceHTMLEntry = ".provenance.html"
)

// DefaultMaxChainDepth bounds how many "+" hops a VDF chain may have before
// Resolve rejects it with VdfChainTooDeep.
const DefaultMaxChainDepth = 8

// Resolver matches a chain of VDF base names against the configured rule
// table. It is pure and stateless beyond the rule table itself.
type Resolver struct {
	rules         []Rule
	maxChainDepth int
}

// New builds a Resolver over rules. maxChainDepth <= 0 selects
// DefaultMaxChainDepth.
func New(rules []Rule, maxChainDepth int) *Resolver {
	if maxChainDepth <= 0 {
		maxChainDepth = DefaultMaxChainDepth
	}
	return &Resolver{rules: rules, maxChainDepth: maxChainDepth}
}

// SyntheticEntries lists the names that appear inside the "<base>+"
// directory: the two provenance leaves plus one leaf per matching rule,
// sorted for a stable readdir order.
func (r *Resolver) SyntheticEntries(base string) []string {
	entries := []string{base + ProvenanceJSONEntry, base + ProvenanceHTMLEntry}
	for _, rule := range r.rules {
		if rule.Matches(base) {
			entries = append(entries, rule.LeafName(base))
		}
	}
	sort.Strings(entries[2:])
	return entries
}

// MatchRules returns every rule whose Match regular expression accepts base.
func (r *Resolver) MatchRules(base string) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.Matches(base) {
			out = append(out, rule)
		}
	}
	return out
}

// Resolution is what Resolve found for one VDF leaf request.
type Resolution struct {
	Rule  Rule
	Base  string
	Depth int
}

// Resolve determines which rule (if any) produces leaf from the innermost
// base of bases, the chain of synthetic directory components leading to it
// (as built by internal/pathtranslator). len(bases) is the chain depth;
// exceeding maxChainDepth is rejected before any rule matching is
// attempted.
func (r *Resolver) Resolve(bases []string, leaf string) (Resolution, error) {
	depth := len(bases)
	if depth > r.maxChainDepth {
		return Resolution{}, fmt.Errorf("%w: chain depth %d exceeds %d", repeatfserr.VdfChainTooDeep, depth, r.maxChainDepth)
	}
	if depth == 0 {
		return Resolution{}, fmt.Errorf("%w: empty VDF chain", repeatfserr.NotFound)
	}
	base := bases[depth-1]

	for _, rule := range r.rules {
		if !rule.Matches(base) {
			continue
		}
		if rule.LeafName(base) == leaf {
			return Resolution{Rule: rule, Base: base, Depth: depth}, nil
		}
	}
	return Resolution{}, fmt.Errorf("%w: no rule produces %q from %q", repeatfserr.NotFound, leaf, base)
}
