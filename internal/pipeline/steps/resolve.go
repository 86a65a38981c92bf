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

	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/netupgrader/internal/log"
	"github.com/cloudwego/netupgrader/internal/nuget"
	"github.com/cloudwego/netupgrader/internal/pipeline"
)

// ResolveVersionsStep builds the package report: for every package referenced
// by any descriptor, the first-seen declared version and the newest version
// any feed offers.
type ResolveVersionsStep struct {
	Resolver      VersionResolver
	Concurrency   int
	FeedSelection string
}

// Name implements pipeline.Step.
func (s *ResolveVersionsStep) Name() string { return pipeline.StepResolveVersions }

// Run implements pipeline.Step.
func (s *ResolveVersionsStep) Run(ctx context.Context, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	if err := st.Claim(pipeline.FieldPackageReport, s.Name()); err != nil {
		return nil, err
	}
	descs, err := nuget.ReadDescriptors(st.ProjectRoot, st.ProjectFiles)
	if err != nil {
		return nil, err
	}

	var names []string
	current := make(map[string]string)
	for _, d := range descs {
		for _, ref := range nuget.ExtractPackageReferences(d.Content) {
			if _, seen := current[ref.Name]; seen {
				continue
			}
			current[ref.Name] = ref.Version
			names = append(names, ref.Name)
		}
	}

	feeds := s.feeds(st)
	lookups := make([]nuget.Lookup, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			lookups[i] = s.Resolver.ResolveAny(gctx, name, feeds)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := make(map[string]nuget.PackageVersions, len(names))
	var unresolved int
	for i, name := range names {
		l := lookups[i]
		if !l.Found() {
			unresolved++
		}
		report[name] = nuget.PackageVersions{
			Current: current[name],
			Latest:  l.Version,
			Source:  l.Source,
		}
	}
	st.PackageReport = report
	log.Info("resolved %d packages (%d without a known latest version)", len(report), unresolved)
	return st, nil
}

// feeds returns the private feeds to try, in order, with their tokens.
func (s *ResolveVersionsStep) feeds(st *pipeline.PipelineState) []nuget.FeedCredential {
	if len(st.PrivateFeeds) == 0 {
		return nil
	}
	candidates := st.PrivateFeeds
	if s.FeedSelection != FeedSelectionEach {
		if len(candidates) > 1 {
			log.Warn("%d private feeds detected, only %s is consulted", len(candidates), candidates[0])
		}
		candidates = candidates[:1]
	}
	out := make([]nuget.FeedCredential, 0, len(candidates))
	for _, feed := range candidates {
		out = append(out, nuget.FeedCredential{URL: feed, Token: st.FeedTokens[feed]})
	}
	return out
}

func (s *ResolveVersionsStep) concurrency() int {
	if s.Concurrency < 1 {
		return defaultConcurrency
	}
	return s.Concurrency
}
