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
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cloudwego/netupgrader/internal/log"
	"github.com/cloudwego/netupgrader/llm/tool"
)

type Tool struct {
	mcp.Tool
	Handler server.ToolHandlerFunc
}

type ServerOptions struct {
	ServerName    string
	ServerVersion string
	Verbose       bool
	Tools         tool.UpgradeToolsOptions
}

type Server struct {
	*server.MCPServer
}

func NewServer(opts ServerOptions) *Server {
	svr := server.NewMCPServer(opts.ServerName, opts.ServerVersion,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)
	for _, t := range getUpgradeTools(opts.Tools) {
		svr.AddTool(t.Tool, t.Handler)
	}
	svr.AddPrompt(mcp.NewPrompt(PromptUpgradeSolution,
		mcp.WithPromptDescription("plan the upgrade of a .NET solution to a target framework"),
		mcp.WithArgument("target_version", mcp.ArgumentDescription("target framework, e.g. net8.0")),
	), handleUpgradeSolutionPrompt)
	if opts.Verbose {
		log.SetLogLevel(log.DebugLevel)
	}
	return &Server{MCPServer: svr}
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Info("serving MCP over stdio")
	return server.ServeStdio(s.MCPServer)
}
