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

// Package pathtranslator implements the bidirectional mapping between a
// mount-relative virtual path and the real backing path (component C1),
// including recognition of the "+" VDF-directory suffix and iterative
// resolution of chained suffixes.
package pathtranslator

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/toniwestbrook/repeatfs/internal/repeatfserr"
)

// Suffix is the character reserved in virtual space to denote a synthetic
// VDF directory attached to a real (or VDF) file.
const Suffix = "+"

// Kind classifies a resolved virtual path.
type Kind int

const (
	// KindReal names an ordinary file or directory in the target tree.
	KindReal Kind = iota
	// KindSyntheticDir names a "X+" directory: the set of VDFs derived
	// from X.
	KindSyntheticDir
	// KindVDFLeaf names a VDF leaf file, e.g. "X+/X.ext".
	KindVDFLeaf
)

// Resolved is the classification of a virtual path.
type Resolved struct {
	Kind Kind

	// RealPath is the backing path for KindReal, or the real path of the
	// innermost real base for KindSyntheticDir/KindVDFLeaf.
	RealPath string

	// Bases is the chain of VDF base names from outermost real file to the
	// immediate base of this leaf/directory, e.g. for
	// "A.fasta+/A.fasta.count" resolved from base "A.fasta", Bases would
	// be ["A.fasta"]. Empty for KindReal.
	Bases []string

	// LeafName is the final path component for KindVDFLeaf (e.g.
	// "A.fasta.count"); empty otherwise.
	LeafName string
}

// Translator maps between mount-relative virtual paths and a real target
// directory. It does not run derivations or match VDF rules — it only
// classifies paths, per spec §4.1, handing the classification to the VDF
// Resolver/Executor.
type Translator struct {
	// Target is the absolute real backing directory this mount overlays.
	Target string
}

// New creates a Translator rooted at the given real target directory.
func New(target string) *Translator {
	return &Translator{Target: target}
}

// Real maps a mount-relative virtual path with no "+" components to its
// real backing path. Callers should first call Resolve and use RealPath
// there instead when the path might contain "+" components.
func (t *Translator) Real(virtual string) string {
	return path.Join(t.Target, virtual)
}

// Resolve classifies a mount-relative virtual path.
//
// A path whose final component is "X+" denotes the synthetic directory of
// VDFs derived from X. Internal components of the form "X+" are resolved
// iteratively: ".../A+/A.fasta+/A.fasta.count" means "the .count VDF of
// the .fasta VDF of file A".
//
// Error: if a path contains a "+" suffix at a position whose prefix does
// not name a real file, Resolve fails with repeatfserr.NotFound — checked
// only for the outermost base, since inner bases are virtual by
// construction once a "+" has been seen.
func (t *Translator) Resolve(virtual string) (Resolved, error) {
	clean := path.Clean("/" + virtual)
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return Resolved{Kind: KindReal, RealPath: t.Target}, nil
	}

	var bases []string
	sawSynthetic := false
	realPrefixParts := parts[:0:0]

	for i, part := range parts {
		isSynthetic := strings.HasSuffix(part, Suffix) && part != Suffix
		last := i == len(parts)-1

		if !isSynthetic {
			if sawSynthetic {
				// A leaf name following a synthetic directory component.
				if !last {
					return Resolved{}, fmt.Errorf("%w: %q has components after a vdf leaf", repeatfserr.NotFound, virtual)
				}
				return Resolved{
					Kind:     KindVDFLeaf,
					RealPath: t.Real(path.Join(realPrefixParts...)),
					Bases:    bases,
					LeafName: part,
				}, nil
			}
			realPrefixParts = append(realPrefixParts, part)
			continue
		}

		base := strings.TrimSuffix(part, Suffix)
		if !sawSynthetic {
			// Outermost base must be a real file/directory.
			candidate := t.Real(path.Join(append(append([]string{}, realPrefixParts...), base)...))
			if _, err := os.Lstat(candidate); err != nil {
				return Resolved{}, fmt.Errorf("%w: base %q of %q does not exist", repeatfserr.NotFound, base, virtual)
			}
		}
		bases = append(bases, base)
		sawSynthetic = true

		if last {
			return Resolved{
				Kind:     KindSyntheticDir,
				RealPath: t.Real(path.Join(realPrefixParts...)),
				Bases:    bases,
			}, nil
		}
	}

	return Resolved{Kind: KindReal, RealPath: t.Real(path.Join(realPrefixParts...))}, nil
}

// StripSuffix returns name with a trailing "+" removed, and whether it was
// present.
func StripSuffix(name string) (base string, hadSuffix bool) {
	if strings.HasSuffix(name, Suffix) && name != Suffix {
		return strings.TrimSuffix(name, Suffix), true
	}
	return name, false
}
