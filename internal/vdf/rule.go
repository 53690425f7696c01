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

import "regexp"

// Rule is a configured VDF derivation: files whose name matches Match get a
// leaf named <base>+Ext, materialized by substituting {input} and {output}
// into Cmd. Rules come from configuration; they are never persisted.
type Rule struct {
	Name  string
	Match *regexp.Regexp
	Ext   string
	Cmd   string
	Env   []string
}

// Matches reports whether candidate (the effective filename the rule is
// tested against) satisfies this rule.
func (r Rule) Matches(candidate string) bool {
	return r.Match.MatchString(candidate)
}

// LeafName is the synthetic filename this rule produces from base.
func (r Rule) LeafName(base string) string {
	return base + r.Ext
}
