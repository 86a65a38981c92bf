// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blocks parses the file blocks a model emits when asked for
// rewritten project files:
//
//	--FILE: relative/path/App.csproj --
//	<full file content>
//	--END FILE--
//
// Text outside recognised blocks is ignored and nothing here ever fails:
// malformed output simply yields fewer results.
package blocks

import (
	"path"
	"regexp"
	"strings"
)

var (
	fileBlockRe = regexp.MustCompile(`(?s)--FILE:\s*(.*?)\s*--\n(.*?)--END FILE--`)
	beforeRe    = regexp.MustCompile(`(?s)<before>(.*?)</before>`)
	afterRe     = regexp.MustCompile(`(?s)<after>(.*?)</after>`)
)

// Block is one recognised file block.
type Block struct {
	Path    string
	Content string
}

// Diff is the before/after pair of one block.
type Diff struct {
	Path   string `json:"path" yaml:"path"`
	Before string `json:"before" yaml:"before"`
	After  string `json:"after" yaml:"after"`
}

// Parse returns every block in text order with path and content trimmed.
func Parse(text string) []Block {
	var out []Block
	for _, m := range fileBlockRe.FindAllStringSubmatch(text, -1) {
		out = append(out, Block{
			Path:    strings.TrimSpace(m[1]),
			Content: strings.TrimSpace(m[2]),
		})
	}
	return out
}

// ParseFileUpdates maps each block's cleaned relative path to its content.
// Nested <before>/<after> sections are display-only and are cut out of the
// content; a block with nothing left contributes no update. Blocks whose path
// is empty, absolute, or escapes the project root are dropped. A later block
// for the same path replaces an earlier one.
func ParseFileUpdates(text string) map[string]string {
	updates := make(map[string]string)
	for _, b := range Parse(text) {
		rel, ok := CleanRelPath(b.Path)
		if !ok {
			continue
		}
		content := StripDiffSections(b.Content)
		if content == "" {
			continue
		}
		updates[rel] = content
	}
	return updates
}

// StripDiffSections removes <before> and <after> sections from content.
func StripDiffSections(content string) string {
	if !strings.Contains(content, "<before>") && !strings.Contains(content, "<after>") {
		return content
	}
	content = beforeRe.ReplaceAllString(content, "")
	content = afterRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// ExtractDiffs returns a Diff for every block that carries both a <before>
// and an <after> section.
func ExtractDiffs(text string) []Diff {
	var out []Diff
	for _, b := range Parse(text) {
		before := beforeRe.FindStringSubmatch(b.Content)
		after := afterRe.FindStringSubmatch(b.Content)
		if before == nil || after == nil {
			continue
		}
		out = append(out, Diff{
			Path:   b.Path,
			Before: strings.TrimSpace(before[1]),
			After:  strings.TrimSpace(after[1]),
		})
	}
	return out
}

// CleanRelPath normalises p to a slash-separated path relative to the
// project root. Backslashes are treated as separators since .NET tooling
// often emits them.
func CleanRelPath(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" || strings.HasPrefix(p, "/") || hasDriveLetter(p) {
		return "", false
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
