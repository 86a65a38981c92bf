/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tool

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/archive"
	"github.com/cloudwego/netupgrader/internal/blocks"
	"github.com/cloudwego/netupgrader/internal/log"
	"github.com/cloudwego/netupgrader/internal/nuget"
	"github.com/cloudwego/netupgrader/internal/pipeline"
	"github.com/cloudwego/netupgrader/internal/pipeline/steps"
	"github.com/cloudwego/netupgrader/internal/report"
)

const (
	ToolScanProject     = "scan_project"
	DescScanProject     = "list the .csproj project descriptors of a .NET solution (a directory or a .zip archive), relative to its root"
	ToolListFeeds       = "list_feeds"
	DescListFeeds       = "list the private NuGet feeds declared by nuget.config files of a solution; an explicit feed replaces discovery"
	ToolResolvePackages = "resolve_packages"
	DescResolvePackages = "report the declared and the latest stable version of every package a solution references, consulting private feeds before the public registry"
	ToolExtractDiffs    = "extract_diffs"
	DescExtractDiffs    = "extract the per-file <before>/<after> fragments from an upgrade preview"
)

var (
	SchemaScanProject     = GetJSONSchema(ScanProjectReq{})
	SchemaListFeeds       = GetJSONSchema(ListFeedsReq{})
	SchemaResolvePackages = GetJSONSchema(ResolvePackagesReq{})
	SchemaExtractDiffs    = GetJSONSchema(ExtractDiffsReq{})
)

type UpgradeToolsOptions struct {
	// Deps only needs Issuer and Resolver; none of the tools calls a model.
	Deps steps.Deps
}

// UpgradeTools exposes the read-only parts of an upgrade run.
type UpgradeTools struct {
	opts UpgradeToolsOptions
}

func NewUpgradeTools(opts UpgradeToolsOptions) *UpgradeTools {
	return &UpgradeTools{opts: opts}
}

type ScanProjectReq struct {
	Path string `json:"path" jsonschema:"description=directory or .zip archive holding the solution"`
}

type ScanProjectResp struct {
	ProjectFiles []string `json:"project_files"`
}

func (t *UpgradeTools) ScanProject(ctx context.Context, req ScanProjectReq) (*ScanProjectResp, error) {
	s, err := t.discover(ctx, req.Path, "", pipeline.StepScan)
	if err != nil {
		return nil, err
	}
	return &ScanProjectResp{ProjectFiles: s.ProjectFiles}, nil
}

type ListFeedsReq struct {
	Path string `json:"path" jsonschema:"description=directory or .zip archive holding the solution"`
	Feed string `json:"feed,omitempty" jsonschema:"description=private feed URL that replaces nuget.config discovery"`
}

type ListFeedsResp struct {
	Feeds []string `json:"feeds"`
}

func (t *UpgradeTools) ListFeeds(ctx context.Context, req ListFeedsReq) (*ListFeedsResp, error) {
	s, err := t.discover(ctx, req.Path, req.Feed, pipeline.StepDetectFeeds)
	if err != nil {
		return nil, err
	}
	return &ListFeedsResp{Feeds: s.PrivateFeeds}, nil
}

type ResolvePackagesReq struct {
	Path string `json:"path" jsonschema:"description=directory or .zip archive holding the solution"`
	Feed string `json:"feed,omitempty" jsonschema:"description=private feed URL that replaces nuget.config discovery"`
}

type ResolvePackagesResp struct {
	Packages map[string]nuget.PackageVersions `json:"packages"`
}

func (t *UpgradeTools) ResolvePackages(ctx context.Context, req ResolvePackagesReq) (*ResolvePackagesResp, error) {
	s, err := t.discover(ctx, req.Path, req.Feed, pipeline.StepResolveVersions)
	if err != nil {
		return nil, err
	}
	return &ResolvePackagesResp{Packages: s.Packages}, nil
}

type ExtractDiffsReq struct {
	Preview string `json:"preview" jsonschema:"description=upgrade preview text containing --FILE: blocks"`
}

type ExtractDiffsResp struct {
	Diffs []blocks.Diff `json:"diffs"`
}

func (t *UpgradeTools) ExtractDiffs(ctx context.Context, req ExtractDiffsReq) (*ExtractDiffsResp, error) {
	diffs := blocks.ExtractDiffs(req.Preview)
	if diffs == nil {
		diffs = []blocks.Diff{}
	}
	return &ExtractDiffsResp{Diffs: diffs}, nil
}

func (t *UpgradeTools) discover(ctx context.Context, path, feed, last string) (*report.Summary, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	root, cleanup, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	st := pipeline.NewPipelineState(uuid.NewString(), root, pipeline.DefaultTarget, feed)
	st, err = steps.Discover(ctx, t.opts.Deps, st, last)
	if err != nil {
		log.Debug("tool discovery on %s failed: %v", path, err)
		return nil, err
	}
	return report.NewSummary(st, ""), nil
}
