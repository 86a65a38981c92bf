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

package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/blocks"
	"github.com/cloudwego/netupgrader/internal/nuget"
)

// KnownTargets are the framework monikers a run may upgrade to.
var KnownTargets = []string{"net6.0", "net7.0", "net8.0", "net9.0-preview"}

// DefaultTarget is used when no target is given.
const DefaultTarget = "net8.0"

// IsKnownTarget reports whether t is one of KnownTargets.
func IsKnownTarget(t string) bool {
	for _, k := range KnownTargets {
		if k == t {
			return true
		}
	}
	return false
}

// Field names a step-written part of PipelineState.
type Field string

const (
	FieldProjectFiles   Field = "project_files"
	FieldPrivateFeeds   Field = "private_feeds"
	FieldFeedTokens     Field = "feed_tokens"
	FieldPackageReport  Field = "package_report"
	FieldAnalysisReport Field = "analysis_report"
	FieldRewritePreview Field = "rewrite_preview"
	FieldFileUpdates    Field = "file_updates"
	FieldDiffs          Field = "diffs"
)

// PipelineState is the single record threaded through one run. The inputs are
// set before the run starts; every other field is written by exactly one step,
// which must Claim it first.
type PipelineState struct {
	RunID         string `json:"run_id"`
	ProjectRoot   string `json:"project_root"`
	TargetVersion string `json:"target_version"`
	UserFeedURL   string `json:"user_feed_url,omitempty"`

	ProjectFiles   []string                         `json:"project_files"`
	PrivateFeeds   []string                         `json:"private_feeds"`
	FeedTokens     map[string]string                `json:"feed_tokens"`
	PackageReport  map[string]nuget.PackageVersions `json:"package_report"`
	AnalysisReport string                           `json:"analysis_report"`
	RewritePreview string                           `json:"rewrite_preview"`
	FileUpdates    map[string]string                `json:"file_updates"`
	Diffs          []blocks.Diff                    `json:"diffs"`

	History []StepRecord     `json:"-"`
	claims  map[Field]string // field -> step that wrote it
}

// StepRecord is an immutable log entry for one completed step.
type StepRecord struct {
	StepName  string
	StartedAt time.Time
	Duration  time.Duration
}

// NewPipelineState returns the initial state of a run.
func NewPipelineState(runID, projectRoot, targetVersion, userFeedURL string) *PipelineState {
	return &PipelineState{
		RunID:         runID,
		ProjectRoot:   projectRoot,
		TargetVersion: targetVersion,
		UserFeedURL:   userFeedURL,
	}
}

// Validate checks the run inputs.
func (s *PipelineState) Validate() error {
	if s == nil {
		return errors.New("pipeline: initial state is nil")
	}
	if s.ProjectRoot == "" {
		return errors.New("pipeline: project root is empty")
	}
	info, err := os.Stat(s.ProjectRoot)
	if err != nil {
		return errors.Wrap(err, "pipeline: project root")
	}
	if !info.IsDir() {
		return errors.Errorf("pipeline: project root %s is not a directory", s.ProjectRoot)
	}
	if s.TargetVersion == "" {
		return errors.New("pipeline: target version is empty")
	}
	if !IsKnownTarget(s.TargetVersion) {
		return errors.Errorf("pipeline: unknown target version %q (known: %v)", s.TargetVersion, KnownTargets)
	}
	return nil
}

// Claim records that step writes field. A field can be claimed once per run.
func (s *PipelineState) Claim(field Field, step string) error {
	if owner, ok := s.claims[field]; ok {
		return errors.Errorf("field %s already written by step %s", field, owner)
	}
	if s.claims == nil {
		s.claims = make(map[Field]string)
	}
	s.claims[field] = step
	return nil
}

// Writer returns the step that claimed field, if any.
func (s *PipelineState) Writer(field Field) (string, bool) {
	owner, ok := s.claims[field]
	return owner, ok
}

// allFields lists every step-written field.
var allFields = []Field{
	FieldProjectFiles,
	FieldPrivateFeeds,
	FieldFeedTokens,
	FieldPackageReport,
	FieldAnalysisReport,
	FieldRewritePreview,
	FieldFileUpdates,
	FieldDiffs,
}

func (s *PipelineState) value(f Field) any {
	switch f {
	case FieldProjectFiles:
		return s.ProjectFiles
	case FieldPrivateFeeds:
		return s.PrivateFeeds
	case FieldFeedTokens:
		return s.FeedTokens
	case FieldPackageReport:
		return s.PackageReport
	case FieldAnalysisReport:
		return s.AnalysisReport
	case FieldRewritePreview:
		return s.RewritePreview
	case FieldFileUpdates:
		return s.FileUpdates
	case FieldDiffs:
		return s.Diffs
	}
	return nil
}

// CheckWrites reports an error when s, the result of step run on prev, differs
// from prev in anything but the fields step claimed.
func (s *PipelineState) CheckWrites(prev *PipelineState, step string) error {
	if s.RunID != prev.RunID || s.ProjectRoot != prev.ProjectRoot ||
		s.TargetVersion != prev.TargetVersion || s.UserFeedURL != prev.UserFeedURL {
		return errors.Errorf("step %s changed the run inputs", step)
	}
	for _, f := range allFields {
		before, claimed := prev.claims[f]
		owner, ok := s.claims[f]
		if claimed && (!ok || owner != before) {
			return errors.Errorf("step %s dropped the claim of %s on %s", step, before, f)
		}
		if reflect.DeepEqual(prev.value(f), s.value(f)) {
			continue
		}
		if claimed {
			return errors.Errorf("step %s changed field %s already written by step %s", step, f, before)
		}
		if !ok || owner != step {
			return errors.Errorf("step %s changed field %s without claiming it", step, f)
		}
	}
	return nil
}

// Clone returns a deep copy, so a step can build its result without touching
// the state it was given.
func (s *PipelineState) Clone() *PipelineState {
	if s == nil {
		return nil
	}
	out := *s
	out.ProjectFiles = cloneSlice(s.ProjectFiles)
	out.PrivateFeeds = cloneSlice(s.PrivateFeeds)
	out.FeedTokens = cloneMap(s.FeedTokens)
	out.PackageReport = cloneMap(s.PackageReport)
	out.FileUpdates = cloneMap(s.FileUpdates)
	out.Diffs = cloneSlice(s.Diffs)
	out.History = cloneSlice(s.History)
	out.claims = cloneMap(s.claims)
	return &out
}

// Fingerprint is the hex sha256 of the run's data fields. Bookkeeping such as
// History is excluded, so two runs over the same input compare equal.
func (s *PipelineState) Fingerprint() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append([]T(nil), in...)
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
