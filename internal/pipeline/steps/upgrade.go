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
	"github.com/cloudwego/netupgrader/internal/log"
	"github.com/cloudwego/netupgrader/internal/pipeline"
	"github.com/cloudwego/netupgrader/llm"
	"github.com/cloudwego/netupgrader/llm/prompt"
)

// AnalyzeStep asks the model for a Markdown upgrade report.
type AnalyzeStep struct {
	Completer llm.Completer
	MaxTokens int
}

// Name implements pipeline.Step.
func (s *AnalyzeStep) Name() string { return pipeline.StepAnalyze }

// Run implements pipeline.Step.
func (s *AnalyzeStep) Run(ctx context.Context, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	if err := st.Claim(pipeline.FieldAnalysisReport, s.Name()); err != nil {
		return nil, err
	}
	uc, err := upgradeContext(st)
	if err != nil {
		return nil, err
	}
	p, err := prompt.Analysis(uc)
	if err != nil {
		return nil, err
	}
	out, err := s.Completer.Complete(ctx, p.String(), s.MaxTokens)
	if err != nil {
		return nil, errors.Wrap(err, "analysis completion")
	}
	st.AnalysisReport = out
	log.Info("analysis report received (%d bytes)", len(out))
	return st, nil
}

// RewriteStep asks the model for rewritten descriptors and parses the reply
// into file updates keyed by relative path.
type RewriteStep struct {
	Completer llm.Completer
	MaxTokens int
}

// Name implements pipeline.Step.
func (s *RewriteStep) Name() string { return pipeline.StepRewrite }

// Run implements pipeline.Step.
func (s *RewriteStep) Run(ctx context.Context, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	if err := st.Claim(pipeline.FieldRewritePreview, s.Name()); err != nil {
		return nil, err
	}
	if err := st.Claim(pipeline.FieldFileUpdates, s.Name()); err != nil {
		return nil, err
	}
	uc, err := upgradeContext(st)
	if err != nil {
		return nil, err
	}
	p, err := prompt.Rewrite(uc)
	if err != nil {
		return nil, err
	}
	out, err := s.Completer.Complete(ctx, p.String(), s.MaxTokens)
	if err != nil {
		return nil, errors.Wrap(err, "rewrite completion")
	}
	st.RewritePreview = out
	st.FileUpdates = blocks.ParseFileUpdates(out)
	log.Info("rewrite proposed %d file updates", len(st.FileUpdates))
	return st, nil
}
