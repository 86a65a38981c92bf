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

package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/blocks"
	"github.com/cloudwego/netupgrader/internal/pipeline"
)

// FinalizeStep checks cross-field invariants and extracts per-file diffs from
// the rewrite preview.
type FinalizeStep struct{}

// Name implements pipeline.Step.
func (s *FinalizeStep) Name() string { return pipeline.StepFinalize }

// Run implements pipeline.Step.
func (s *FinalizeStep) Run(ctx context.Context, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	if err := st.Claim(pipeline.FieldDiffs, s.Name()); err != nil {
		return nil, err
	}
	if len(st.FeedTokens) != len(st.PrivateFeeds) {
		return nil, errors.Errorf("%d feed tokens for %d private feeds", len(st.FeedTokens), len(st.PrivateFeeds))
	}
	for _, feed := range st.PrivateFeeds {
		if _, ok := st.FeedTokens[feed]; !ok {
			return nil, errors.Errorf("no token issued for feed %s", feed)
		}
	}
	for path := range st.FileUpdates {
		if _, ok := blocks.CleanRelPath(path); !ok {
			return nil, errors.Errorf("file update %q escapes the project root", path)
		}
	}
	diffs := blocks.ExtractDiffs(st.RewritePreview)
	if diffs == nil {
		diffs = []blocks.Diff{}
	}
	st.Diffs = diffs
	return st, nil
}
