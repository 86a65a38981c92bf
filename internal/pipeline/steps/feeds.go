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

	"github.com/cloudwego/netupgrader/internal/log"
	"github.com/cloudwego/netupgrader/internal/nuget"
	"github.com/cloudwego/netupgrader/internal/pipeline"
)

// ScanStep records every project descriptor under the project root.
type ScanStep struct{}

// Name implements pipeline.Step.
func (s *ScanStep) Name() string { return pipeline.StepScan }

// Run implements pipeline.Step.
func (s *ScanStep) Run(ctx context.Context, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	if err := st.Claim(pipeline.FieldProjectFiles, s.Name()); err != nil {
		return nil, err
	}
	files, err := nuget.FindDescriptors(st.ProjectRoot)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []string{}
	}
	st.ProjectFiles = files
	log.Info("found %d project descriptors", len(files))
	return st, nil
}

// DetectFeedsStep records the private feeds for the run. A user-supplied feed
// takes precedence over anything found in nuget.config files.
type DetectFeedsStep struct{}

// Name implements pipeline.Step.
func (s *DetectFeedsStep) Name() string { return pipeline.StepDetectFeeds }

// Run implements pipeline.Step.
func (s *DetectFeedsStep) Run(ctx context.Context, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	if err := st.Claim(pipeline.FieldPrivateFeeds, s.Name()); err != nil {
		return nil, err
	}
	feeds, err := nuget.DetectFeeds(st.ProjectRoot, st.UserFeedURL)
	if err != nil {
		return nil, err
	}
	if feeds == nil {
		feeds = []string{}
	}
	st.PrivateFeeds = feeds
	log.Info("using %d private feeds", len(feeds))
	return st, nil
}

// IssueCredentialsStep mints one bearer token per private feed.
type IssueCredentialsStep struct {
	Issuer TokenIssuer
}

// Name implements pipeline.Step.
func (s *IssueCredentialsStep) Name() string { return pipeline.StepIssueCredentials }

// Run implements pipeline.Step.
func (s *IssueCredentialsStep) Run(ctx context.Context, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	if err := st.Claim(pipeline.FieldFeedTokens, s.Name()); err != nil {
		return nil, err
	}
	tokens := make(map[string]string, len(st.PrivateFeeds))
	for _, feed := range st.PrivateFeeds {
		tok, err := s.Issuer.Issue(feed)
		if err != nil {
			return nil, err
		}
		tokens[feed] = tok
	}
	st.FeedTokens = tokens
	return st, nil
}
