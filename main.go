// Copyright 2025 CloudWeGo Authors
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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/cloudwego/netupgrader/internal/archive"
	"github.com/cloudwego/netupgrader/internal/blocks"
	"github.com/cloudwego/netupgrader/internal/config"
	"github.com/cloudwego/netupgrader/internal/log"
	"github.com/cloudwego/netupgrader/internal/nuget"
	"github.com/cloudwego/netupgrader/internal/pipeline"
	"github.com/cloudwego/netupgrader/internal/pipeline/steps"
	"github.com/cloudwego/netupgrader/internal/report"
	"github.com/cloudwego/netupgrader/llm"
	"github.com/cloudwego/netupgrader/llm/mcp"
	"github.com/cloudwego/netupgrader/llm/tool"
	"github.com/cloudwego/netupgrader/version"
)

const Usage = `netupgrader <Action> <Path> [Flags]
Action:
   run          upgrade a .NET solution (zip archive or directory) to -target and write a new archive
   scan         list the project descriptors (.csproj) under Path
   feeds        list the private feeds declared under Path (or given by -feed)
   resolve      print current and latest versions of every referenced package, without AI
   diff         print the before/after diffs found in a saved rewrite preview file
   mcp          serve scan, feeds, resolve and diff as MCP tools over stdio (Path is ignored, use "-")
   version      print the version of netupgrader
Targets:
   net6.0, net7.0, net8.0, net9.0-preview
`

func main() {
	flags := flag.NewFlagSet("netupgrader", flag.ExitOnError)

	flagHelp := flags.Bool("h", false, "Show help message.")
	flagVerbose := flags.Bool("verbose", false, "Verbose mode.")
	flagOutput := flags.String("o", "", "Output directory for the upgraded archive (default: output.dir).")
	flagConfig := flags.String("config", "", "YAML config file.")
	flagEnv := flags.String("env", "", "dotenv file (default: .env).")
	flagTarget := flags.String("target", pipeline.DefaultTarget, "Target framework.")
	flagFeed := flags.String("feed", "", "Private feed URL; overrides nuget.config discovery.")
	flagFormat := flags.String("format", report.FormatJSON, "Summary format: json or yaml.")
	flagReport := flags.String("report", "", "Also write the text report to this path.")
	flagStrategy := flags.String("strategy", "", "Executor: graph or sequential (default: pipeline.strategy).")

	flags.Usage = func() {
		fmt.Fprint(os.Stderr, Usage)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flags.PrintDefaults()
	}

	if len(os.Args) < 2 {
		flags.Usage()
		os.Exit(1)
	}
	action := strings.ToLower(os.Args[1])
	if action == "version" {
		fmt.Fprintf(os.Stdout, "%s\n", version.Version)
		return
	}

	uri := parseArgsAndFlags(flags, flagHelp)
	cfg, err := config.Load(config.Options{ConfigFile: *flagConfig, EnvFile: *flagEnv})
	if err != nil {
		log.Error("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log.Init(log.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})
	if *flagVerbose {
		log.SetLogLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch action {
	case "run":
		if err := cfg.Validate(); err != nil {
			log.Error("Missing configuration: %v\n", err)
			os.Exit(1)
		}
		if *flagStrategy != "" {
			cfg.Pipeline.Strategy = *flagStrategy
		}
		if *flagOutput != "" {
			cfg.Output.Dir = *flagOutput
		}
		if err := runUpgrade(ctx, cfg, uri, *flagTarget, *flagFeed, *flagFormat, *flagReport); err != nil {
			log.Error("Upgrade failed: %v\n", err)
			os.Exit(1)
		}

	case "scan", "feeds", "resolve":
		summary, err := discover(ctx, cfg, action, uri, *flagTarget, *flagFeed)
		if err != nil {
			log.Error("Failed to %s: %v\n", action, err)
			os.Exit(1)
		}
		if err := report.Encode(os.Stdout, summary, *flagFormat); err != nil {
			log.Error("Failed to write output: %v\n", err)
			os.Exit(1)
		}

	case "diff":
		text, err := nuget.ReadText(uri)
		if err != nil {
			log.Error("Failed to read preview: %v\n", err)
			os.Exit(1)
		}
		diffs := blocks.ExtractDiffs(text)
		if diffs == nil {
			diffs = []blocks.Diff{}
		}
		if err := report.Encode(os.Stdout, diffs, *flagFormat); err != nil {
			log.Error("Failed to write output: %v\n", err)
			os.Exit(1)
		}

	case "mcp":
		svr := mcp.NewServer(mcp.ServerOptions{
			ServerName:    "netupgrader",
			ServerVersion: version.Version,
			Tools:         tool.UpgradeToolsOptions{Deps: newDeps(cfg)},
		})
		if err := svr.ServeStdio(); err != nil {
			log.Error("Failed to run MCP server: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", action)
		flags.Usage()
		os.Exit(1)
	}
}

func parseArgsAndFlags(flags *flag.FlagSet, flagHelp *bool) (uri string) {
	if len(os.Args) < 3 {
		flags.Usage()
		os.Exit(1)
	}
	uri = os.Args[2]
	if len(os.Args) > 3 {
		flags.Parse(os.Args[3:])
	}
	if flagHelp != nil && *flagHelp {
		flags.Usage()
		os.Exit(0)
	}
	return uri
}

func newDeps(cfg *config.Config) steps.Deps {
	return steps.Deps{
		Issuer: nuget.NewIssuer(cfg.Credentials.Subject, cfg.Credentials.TTL),
		Resolver: nuget.NewResolver(nuget.ResolverOptions{
			PublicRegistry: cfg.Resolver.PublicRegistry,
			Timeout:        cfg.Resolver.Timeout,
		}),
		Concurrency:       cfg.Resolver.Concurrency,
		FeedSelection:     cfg.Resolver.FeedSelection,
		AnalysisMaxTokens: cfg.Pipeline.AnalysisMaxTokens,
		RewriteMaxTokens:  cfg.Pipeline.RewriteMaxTokens,
	}
}

func runUpgrade(ctx context.Context, cfg *config.Config, uri, target, feed, format, reportPath string) error {
	strategy, err := pipeline.ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		return err
	}
	chat, err := llm.NewChatModel(ctx, llm.ModelConfig{
		Name:       "upgrade",
		APIType:    llm.NewModelType(cfg.LLM.Type),
		BaseURL:    cfg.LLM.Endpoint,
		APIKey:     cfg.LLM.APIKey,
		ModelName:  cfg.LLM.Deployment,
		APIVersion: cfg.LLM.APIVersion,
		Timeout:    cfg.LLM.Timeout,
	})
	if err != nil {
		return err
	}
	deps := newDeps(cfg)
	deps.Completer = llm.NewChatCompleter(chat, cfg.LLM.Timeout)
	p, err := steps.NewPipeline(strategy, deps)
	if err != nil {
		return err
	}

	root, cleanup, err := archive.Open(uri)
	if err != nil {
		return err
	}
	defer cleanup()

	runID := uuid.NewString()
	st, err := p.Run(ctx, pipeline.NewPipelineState(runID, root, target, feed))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return err
	}
	out, err := archive.Repackage(root, st.FileUpdates, st.TargetVersion, archive.OutputPath(cfg.Output.Dir, st.TargetVersion, runID))
	if err != nil {
		return err
	}
	log.Info("Upgraded archive written to %s\n", out)

	if reportPath != "" {
		if err := report.WriteText(reportPath, st); err != nil {
			return err
		}
	}
	return report.Encode(os.Stdout, report.NewSummary(st, out), format)
}

// discover runs the steps that need no completion service, stopping after the
// one the action reports on.
func discover(ctx context.Context, cfg *config.Config, action, uri, target, feed string) (any, error) {
	root, cleanup, err := archive.Open(uri)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	last := map[string]string{
		"scan":    pipeline.StepScan,
		"feeds":   pipeline.StepDetectFeeds,
		"resolve": pipeline.StepResolveVersions,
	}[action]
	st, err := steps.Discover(ctx, newDeps(cfg), pipeline.NewPipelineState(uuid.NewString(), root, target, feed), last)
	if err != nil {
		return nil, err
	}

	summary := report.NewSummary(st, "")
	switch action {
	case "scan":
		return summary.ProjectFiles, nil
	case "feeds":
		return summary.PrivateFeeds, nil
	default:
		return summary.Packages, nil
	}
}
