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

package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cloudwego/netupgrader/internal/pipeline"
	"github.com/cloudwego/netupgrader/llm/prompt"
	"github.com/cloudwego/netupgrader/llm/tool"
)

func NewTool[R any, T any](name string, desc string, schema json.RawMessage, handler func(ctx context.Context, req R) (*T, error)) Tool {
	return Tool{
		Tool: mcp.NewToolWithRawSchema(name, desc, schema),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var req R
			if err := request.BindArguments(&req); err != nil {
				return nil, err
			}
			var final string
			var isError bool
			if resp, err := handler(ctx, req); err != nil {
				isError = true
				final = err.Error()
			} else if js, err := json.Marshal(resp); err != nil {
				isError = true
				final = err.Error()
			} else {
				final = string(js)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(final),
				},
				IsError: isError,
			}, nil
		},
	}
}

func getUpgradeTools(opts tool.UpgradeToolsOptions) []Tool {
	up := tool.NewUpgradeTools(opts)
	return []Tool{
		NewTool(tool.ToolScanProject, tool.DescScanProject, tool.SchemaScanProject, up.ScanProject),
		NewTool(tool.ToolListFeeds, tool.DescListFeeds, tool.SchemaListFeeds, up.ListFeeds),
		NewTool(tool.ToolResolvePackages, tool.DescResolvePackages, tool.SchemaResolvePackages, up.ResolvePackages),
		NewTool(tool.ToolExtractDiffs, tool.DescExtractDiffs, tool.SchemaExtractDiffs, up.ExtractDiffs),
	}
}

const PromptUpgradeSolution = "upgrade_solution"

func handleUpgradeSolutionPrompt(
	ctx context.Context,
	request mcp.GetPromptRequest,
) (*mcp.GetPromptResult, error) {
	target := request.Params.Arguments["target_version"]
	if target == "" {
		target = pipeline.DefaultTarget
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(prompt.Instructions))
	sb.WriteString("\n\nTarget .NET version: ")
	sb.WriteString(target)
	sb.WriteString("\nUse scan_project, list_feeds and resolve_packages to gather the context before proposing changes.")
	return &mcp.GetPromptResult{
		Description: "Plan the upgrade of a .NET solution",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: sb.String(),
				},
			},
		},
	}, nil
}
