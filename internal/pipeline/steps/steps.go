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

// Package steps holds the concrete stages of an upgrade run.
package steps

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/nuget"
	"github.com/cloudwego/netupgrader/internal/pipeline"
	"github.com/cloudwego/netupgrader/llm"
	"github.com/cloudwego/netupgrader/llm/prompt"
)

// Feed selection modes for version lookups.
const (
	// FeedSelectionFirst consults only the first discovered private feed.
	FeedSelectionFirst = "first"
	// FeedSelectionEach consults every private feed in order.
	FeedSelectionEach = "each"
)

const defaultConcurrency = 4

// TokenIssuer mints a credential for one feed URL.
type TokenIssuer interface {
	Issue(feedURL string) (string, error)
}

// VersionResolver looks a package up on private feeds, then the public registry.
type VersionResolver interface {
	ResolveAny(ctx context.Context, name string, feeds []nuget.FeedCredential) nuget.Lookup
}

// Deps are the collaborators shared by the steps of a run.
type Deps struct {
	Issuer    TokenIssuer
	Resolver  VersionResolver
	Completer llm.Completer

	Concurrency       int
	FeedSelection     string
	AnalysisMaxTokens int
	RewriteMaxTokens  int
}

func (d Deps) validate() error {
	if d.Issuer == nil {
		return errors.New("steps: token issuer is nil")
	}
	if d.Resolver == nil {
		return errors.New("steps: version resolver is nil")
	}
	if d.Completer == nil {
		return errors.New("steps: completer is nil")
	}
	switch d.FeedSelection {
	case "", FeedSelectionFirst, FeedSelectionEach:
	default:
		return errors.Errorf("steps: unknown feed selection %q", d.FeedSelection)
	}
	return nil
}

// New returns every step in canonical order.
func New(d Deps) ([]pipeline.Step, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	return []pipeline.Step{
		&ScanStep{},
		&DetectFeedsStep{},
		&IssueCredentialsStep{Issuer: d.Issuer},
		&ResolveVersionsStep{
			Resolver:      d.Resolver,
			Concurrency:   d.Concurrency,
			FeedSelection: d.FeedSelection,
		},
		&AnalyzeStep{Completer: d.Completer, MaxTokens: d.AnalysisMaxTokens},
		&RewriteStep{Completer: d.Completer, MaxTokens: d.RewriteMaxTokens},
		&FinalizeStep{},
	}, nil
}

// Discovery returns the steps that need no completion service, in canonical
// order: scan, detect-feeds, issue-credentials and resolve-versions.
func Discovery(d Deps) ([]pipeline.Step, error) {
	if d.Issuer == nil || d.Resolver == nil {
		return nil, errors.New("steps: discovery needs an issuer and a resolver")
	}
	return []pipeline.Step{
		&ScanStep{},
		&DetectFeedsStep{},
		&IssueCredentialsStep{Issuer: d.Issuer},
		&ResolveVersionsStep{
			Resolver:      d.Resolver,
			Concurrency:   d.Concurrency,
			FeedSelection: d.FeedSelection,
		},
	}, nil
}

// Discover runs the Discovery steps against st in order and stops after the
// step named last. An empty last runs all of them.
func Discover(ctx context.Context, d Deps, st *pipeline.PipelineState, last string) (*pipeline.PipelineState, error) {
	discovery, err := Discovery(d)
	if err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	for _, step := range discovery {
		if st, err = step.Run(ctx, st.Clone()); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
		if step.Name() == last {
			break
		}
	}
	return st, nil
}

// NewPipeline wires New into a pipeline.Pipeline.
func NewPipeline(strategy pipeline.Strategy, d Deps) (*pipeline.Pipeline, error) {
	steps, err := New(d)
	if err != nil {
		return nil, err
	}
	return pipeline.New(strategy, steps...)
}

// upgradeContext gathers the prompt inputs from st. Descriptors are labelled
// by their path relative to the project root.
func upgradeContext(st *pipeline.PipelineState) (prompt.UpgradeContext, error) {
	descs, err := nuget.ReadDescriptors(st.ProjectRoot, st.ProjectFiles)
	if err != nil {
		return prompt.UpgradeContext{}, err
	}
	files := make([]prompt.File, 0, len(descs))
	for _, d := range descs {
		files = append(files, prompt.File{Path: d.Rel, Content: d.Content})
	}
	var report any
	if st.PackageReport != nil {
		report = st.PackageReport
	}
	return prompt.UpgradeContext{
		TargetVersion: st.TargetVersion,
		Feeds:         st.PrivateFeeds,
		PackageReport: report,
		Files:         files,
	}, nil
}
