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

// Package config parses the mount's VDF rule and plugin configuration file.
// The format is intentionally not YAML: it is a small line-oriented format
// the core has parsed forever, and introducing a templating/markup library
// for four key shapes (plugins=, [entry], key=value, plugin.field=value)
// would trade a ten-line scanner for a dependency with its own surface.
package config

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/toniwestbrook/repeatfs/internal/vdf"
)

// Document is the parsed form of a mount's configuration file.
type Document struct {
	// Plugins lists the names from the top-level plugins= key, in the
	// order they appeared.
	Plugins []string

	// Rules are the VDF entries, in file order.
	Rules []vdf.Rule

	// PluginConfig holds plugin_name.field=value pairs, keyed by plugin
	// name and then field name.
	PluginConfig map[string]map[string]string
}

type entryBuilder struct {
	name  string
	match string
	ext   string
	cmd   string
}

func (b *entryBuilder) build() (vdf.Rule, error) {
	if b.match == "" {
		return vdf.Rule{}, fmt.Errorf("entry %q: missing match=", b.name)
	}
	if b.cmd == "" {
		return vdf.Rule{}, fmt.Errorf("entry %q: missing cmd=", b.name)
	}
	re, err := regexp.Compile(b.match)
	if err != nil {
		return vdf.Rule{}, fmt.Errorf("entry %q: bad match regexp: %w", b.name, err)
	}
	return vdf.Rule{
		Name:  b.name,
		Match: re,
		Ext:   b.ext,
		Cmd:   b.cmd,
	}, nil
}

// Parse reads a configuration document from r.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{PluginConfig: map[string]map[string]string{}}

	var current *entryBuilder
	flush := func() error {
		if current == nil {
			return nil
		}
		rule, err := current.build()
		if err != nil {
			return err
		}
		doc.Rules = append(doc.Rules, rule)
		current = nil
		return nil
	}

	entryCount := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if line == "[entry]" {
			if err := flush(); err != nil {
				return nil, err
			}
			entryCount++
			current = &entryBuilder{name: fmt.Sprintf("entry%d", entryCount)}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed configuration line: %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == "plugins":
			for _, name := range strings.Split(value, ",") {
				name = strings.TrimSpace(name)
				if name != "" {
					doc.Plugins = append(doc.Plugins, name)
				}
			}
		case current != nil && key == "match":
			current.match = value
		case current != nil && key == "ext":
			current.ext = value
		case current != nil && key == "cmd":
			current.cmd = value
		case strings.Contains(key, "."):
			plugin, field, _ := strings.Cut(key, ".")
			if doc.PluginConfig[plugin] == nil {
				doc.PluginConfig[plugin] = map[string]string{}
			}
			doc.PluginConfig[plugin][field] = value
		default:
			return nil, fmt.Errorf("unrecognized configuration key: %q", key)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Default returns the configuration written by the generate subcommand.
func Default() *Document {
	return &Document{
		Plugins:      nil,
		PluginConfig: map[string]map[string]string{},
		Rules: []vdf.Rule{
			{
				Name:  "entry1",
				Match: regexp.MustCompile(`\.fastq$`),
				Ext:   ".fasta",
				Cmd:   "seqtk seq -A {input}",
			},
		},
	}
}

// Render writes doc back out in the file format Parse accepts.
func Render(doc *Document) string {
	var b strings.Builder
	b.WriteString("# repeatfs mount configuration\n")
	if len(doc.Plugins) > 0 {
		fmt.Fprintf(&b, "plugins=%s\n", strings.Join(doc.Plugins, ","))
	}
	for _, rule := range doc.Rules {
		b.WriteString("\n[entry]\n")
		if rule.Match != nil {
			fmt.Fprintf(&b, "match=%s\n", rule.Match.String())
		}
		fmt.Fprintf(&b, "ext=%s\n", rule.Ext)
		fmt.Fprintf(&b, "cmd=%s\n", rule.Cmd)
	}
	for plugin, fields := range doc.PluginConfig {
		for field, value := range fields {
			fmt.Fprintf(&b, "%s.%s=%s\n", plugin, field, value)
		}
	}
	return b.String()
}
