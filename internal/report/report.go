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

// Package report renders the outcome of an upgrade run for people and tools.
package report

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cloudwego/netupgrader/internal/blocks"
	"github.com/cloudwego/netupgrader/internal/nuget"
	"github.com/cloudwego/netupgrader/internal/pipeline"
)

// Output formats accepted by Encode.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Summary is the machine-readable result of a run. Tokens are never included.
type Summary struct {
	RunID         string                           `json:"run_id" yaml:"run_id"`
	TargetVersion string                           `json:"target_version" yaml:"target_version"`
	Archive       string                           `json:"archive,omitempty" yaml:"archive,omitempty"`
	ProjectFiles  []string                         `json:"project_files" yaml:"project_files"`
	PrivateFeeds  []string                         `json:"private_feeds" yaml:"private_feeds"`
	Packages      map[string]nuget.PackageVersions `json:"packages" yaml:"packages"`
	UpdatedFiles  []string                         `json:"updated_files" yaml:"updated_files"`
	Diffs         []blocks.Diff                    `json:"diffs" yaml:"diffs"`
	Steps         []Step                           `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Step is the timing of one completed step.
type Step struct {
	Name     string `json:"name" yaml:"name"`
	Duration string `json:"duration" yaml:"duration"`
}

// NewSummary builds a Summary from a final state. Descriptor paths are made
// relative to the project root.
func NewSummary(st *pipeline.PipelineState, archive string) *Summary {
	s := &Summary{
		RunID:         st.RunID,
		TargetVersion: st.TargetVersion,
		Archive:       archive,
		ProjectFiles:  make([]string, 0, len(st.ProjectFiles)),
		PrivateFeeds:  append([]string{}, st.PrivateFeeds...),
		Packages:      make(map[string]nuget.PackageVersions, len(st.PackageReport)),
		UpdatedFiles:  make([]string, 0, len(st.FileUpdates)),
		Diffs:         make([]blocks.Diff, 0, len(st.Diffs)),
	}
	for _, p := range st.ProjectFiles {
		s.ProjectFiles = append(s.ProjectFiles, relTo(st.ProjectRoot, p))
	}
	sort.Strings(s.ProjectFiles)
	for name, v := range st.PackageReport {
		s.Packages[name] = v
	}
	for p := range st.FileUpdates {
		s.UpdatedFiles = append(s.UpdatedFiles, p)
	}
	sort.Strings(s.UpdatedFiles)
	s.Diffs = append(s.Diffs, st.Diffs...)
	for _, h := range st.History {
		s.Steps = append(s.Steps, Step{Name: h.StepName, Duration: h.Duration.String()})
	}
	return s
}

func relTo(root, p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	root = strings.TrimSuffix(strings.ReplaceAll(root, `\`, "/"), "/")
	if root != "" && strings.HasPrefix(p, root+"/") {
		return p[len(root)+1:]
	}
	return p
}

// Encode writes v to w as indented JSON or YAML.
func Encode(w io.Writer, v any, format string) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return errors.Wrap(enc.Close(), "encode yaml")
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

// Text renders the human-readable report: the analysis followed by the raw
// rewrite preview.
func Text(st *pipeline.PipelineState) string {
	var sb strings.Builder
	sb.WriteString("=== AI Analysis Report ===\n\n")
	sb.WriteString(strings.TrimSpace(st.AnalysisReport))
	sb.WriteString("\n\n=== AI Upgrade Preview ===\n\n")
	sb.WriteString(strings.TrimSpace(st.RewritePreview))
	sb.WriteString("\n")
	return sb.String()
}

// WriteText writes Text(st) to path.
func WriteText(path string, st *pipeline.PipelineState) error {
	if err := os.WriteFile(path, []byte(Text(st)), 0644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}
