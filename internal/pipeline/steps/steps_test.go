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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/netupgrader/internal/nuget"
	"github.com/cloudwego/netupgrader/internal/pipeline"
)

const webCsproj = `<Project Sdk="Microsoft.NET.Sdk.Web">
  <PropertyGroup>
    <TargetFramework>net6.0</TargetFramework>
  </PropertyGroup>
  <ItemGroup>
    <PackageReference Include="Newtonsoft.Json" Version="12.0.1" />
    <PackageReference Include="Acme.Core" Version="1.0.0" />
  </ItemGroup>
</Project>`

const libCsproj = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <TargetFramework>net6.0</TargetFramework>
  </PropertyGroup>
  <ItemGroup>
    <PackageReference Include="Newtonsoft.Json" Version="13.0.1" />
  </ItemGroup>
</Project>`

const rewriteReply = `Here you go.

--FILE: src/Web/Web.csproj --
<Project Sdk="Microsoft.NET.Sdk.Web">
  <PropertyGroup>
    <TargetFramework>net8.0</TargetFramework>
  </PropertyGroup>
  <before><TargetFramework>net6.0</TargetFramework></before>
  <after><TargetFramework>net8.0</TargetFramework></after>
</Project>
--END FILE--
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

// fakeCompleter answers analysis and rewrite prompts with canned text and
// records every prompt it saw.
type fakeCompleter struct {
	mu       sync.Mutex
	prompts  []string
	analysis string
	rewrite  string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, p string, maxTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(p, "machine-parseable blocks") {
		return f.rewrite, nil
	}
	return f.analysis, nil
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(feed string) (string, error) { return "tok:" + feed, nil }

// newRegistry serves flat-container indexes keyed by lower-cased id and
// records Authorization headers.
func newRegistry(t *testing.T, versions map[string][]string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		auth []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 {
			http.NotFound(w, r)
			return
		}
		vs, ok := versions[parts[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"versions": vs})
	}))
	t.Cleanup(srv.Close)
	return srv, &auth
}

type fixture struct {
	root      string
	private   *httptest.Server
	public    *httptest.Server
	completer *fakeCompleter
	deps      Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	private, _ := newRegistry(t, map[string][]string{"acme.core": {"1.0.0", "1.2.0"}})
	public, _ := newRegistry(t, map[string][]string{
		"newtonsoft.json": {"12.0.1", "13.0.3", "14.0.0-beta1"},
		"acme.core":       {"99.0.0"},
	})
	root := writeTree(t, map[string]string{
		"src/Web/Web.csproj": webCsproj,
		"src/Lib/Lib.csproj": libCsproj,
		"nuget.config":       `<configuration><packageSources><add key="acme" value="` + private.URL + `" /></packageSources></configuration>`,
	})
	c := &fakeCompleter{analysis: "# Report\n\nAll good.", rewrite: rewriteReply}
	return &fixture{
		root:      root,
		private:   private,
		public:    public,
		completer: c,
		deps: Deps{
			Issuer:            fakeIssuer{},
			Resolver:          nuget.NewResolver(nuget.ResolverOptions{PublicRegistry: public.URL}),
			Completer:         c,
			Concurrency:       2,
			AnalysisMaxTokens: 3000,
			RewriteMaxTokens:  3500,
		},
	}
}

func run(t *testing.T, strategy pipeline.Strategy, deps Deps, st *pipeline.PipelineState) (*pipeline.PipelineState, error) {
	t.Helper()
	p, err := NewPipeline(strategy, deps)
	require.NoError(t, err)
	return p.Run(context.Background(), st)
}

func TestNew_RejectsMissingDeps(t *testing.T) {
	_, err := New(Deps{Issuer: fakeIssuer{}, Resolver: nuget.NewResolver(nuget.ResolverOptions{})})
	assert.Error(t, err)

	_, err = New(Deps{Completer: &fakeCompleter{}, Resolver: nuget.NewResolver(nuget.ResolverOptions{})})
	assert.Error(t, err)

	_, err = New(Deps{
		Issuer:        fakeIssuer{},
		Resolver:      nuget.NewResolver(nuget.ResolverOptions{}),
		Completer:     &fakeCompleter{},
		FeedSelection: "random",
	})
	assert.Error(t, err)
}

func TestNew_CanonicalOrder(t *testing.T) {
	f := newFixture(t)
	steps, err := New(f.deps)
	require.NoError(t, err)
	var names []string
	for _, s := range steps {
		names = append(names, s.Name())
	}
	assert.Equal(t, pipeline.StepOrder, names)
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t)
	st, err := run(t, pipeline.StrategySequential, f.deps, pipeline.NewPipelineState("run-1", f.root, "net8.0", ""))
	require.NoError(t, err)

	assert.Len(t, st.ProjectFiles, 2)
	assert.Equal(t, []string{f.private.URL}, st.PrivateFeeds)
	assert.Equal(t, map[string]string{f.private.URL: "tok:" + f.private.URL}, st.FeedTokens)

	// Lib.csproj is scanned first, so its pin is the current version.
	assert.Equal(t, map[string]nuget.PackageVersions{
		"Newtonsoft.Json": {Current: "13.0.1", Latest: "13.0.3", Source: nuget.SourcePublic},
		"Acme.Core":       {Current: "1.0.0", Latest: "1.2.0", Source: nuget.SourcePrivate},
	}, st.PackageReport)

	assert.Equal(t, "# Report\n\nAll good.", st.AnalysisReport)
	assert.Equal(t, rewriteReply, st.RewritePreview)
	require.Contains(t, st.FileUpdates, "src/Web/Web.csproj")
	assert.NotContains(t, st.FileUpdates["src/Web/Web.csproj"], "<before>")
	assert.Contains(t, st.FileUpdates["src/Web/Web.csproj"], "net8.0")

	require.Len(t, st.Diffs, 1)
	assert.Equal(t, "src/Web/Web.csproj", st.Diffs[0].Path)

	require.Len(t, st.History, len(pipeline.StepOrder))
	for i, rec := range st.History {
		assert.Equal(t, pipeline.StepOrder[i], rec.StepName)
	}

	// Both prompts carry relative paths, never the temp root.
	require.Len(t, f.completer.prompts, 2)
	for _, p := range f.completer.prompts {
		assert.Contains(t, p, "// FILE: src/Web/Web.csproj")
		assert.NotContains(t, p, f.root)
		assert.Contains(t, p, "net8.0")
	}
}

func TestPipeline_StrategiesAgree(t *testing.T) {
	f := newFixture(t)
	seq, err := run(t, pipeline.StrategySequential, f.deps, pipeline.NewPipelineState("run-1", f.root, "net8.0", ""))
	require.NoError(t, err)
	graph, err := run(t, pipeline.StrategyGraph, f.deps, pipeline.NewPipelineState("run-1", f.root, "net8.0", ""))
	require.NoError(t, err)
	assert.Equal(t, seq.Fingerprint(), graph.Fingerprint())
}

func TestPipeline_UserFeedOverrides(t *testing.T) {
	f := newFixture(t)
	userFeed, auth := newRegistry(t, map[string][]string{"acme.core": {"3.0.0"}})

	st, err := run(t, pipeline.StrategySequential, f.deps, pipeline.NewPipelineState("run-1", f.root, "net7.0", userFeed.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{userFeed.URL}, st.PrivateFeeds)
	assert.Equal(t, "3.0.0", st.PackageReport["Acme.Core"].Latest)
	assert.Contains(t, *auth, "Bearer tok:"+userFeed.URL)
}

func TestPipeline_EmptyTree(t *testing.T) {
	f := newFixture(t)
	f.completer.rewrite = "nothing to rewrite"
	root := t.TempDir()

	st, err := run(t, pipeline.StrategySequential, f.deps, pipeline.NewPipelineState("run-1", root, "net8.0", ""))
	require.NoError(t, err)
	assert.Empty(t, st.ProjectFiles)
	assert.NotNil(t, st.ProjectFiles)
	assert.Empty(t, st.PrivateFeeds)
	assert.Empty(t, st.FeedTokens)
	assert.Empty(t, st.PackageReport)
	assert.Empty(t, st.FileUpdates)
	assert.Empty(t, st.Diffs)
}

func TestPipeline_CompletionFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.completer.err = errors.New("quota exceeded")

	for _, strategy := range []pipeline.Strategy{pipeline.StrategySequential, pipeline.StrategyGraph} {
		st, err := run(t, strategy, f.deps, pipeline.NewPipelineState("run-1", f.root, "net8.0", ""))
		require.Error(t, err, strategy)
		assert.Nil(t, st)
		assert.Contains(t, err.Error(), "quota exceeded")
		assert.Contains(t, err.Error(), pipeline.StepAnalyze)
	}
}

func TestResolveVersions_FeedSelection(t *testing.T) {
	first, firstAuth := newRegistry(t, map[string][]string{})
	second, secondAuth := newRegistry(t, map[string][]string{"acme.core": {"7.0.0"}})
	public, _ := newRegistry(t, map[string][]string{"acme.core": {"99.0.0"}})
	root := writeTree(t, map[string]string{"A.csproj": `<PackageReference Include="Acme.Core" Version="1.0.0" />`})

	newState := func() *pipeline.PipelineState {
		st := pipeline.NewPipelineState("run-1", root, "net8.0", "")
		st.ProjectFiles = []string{filepath.Join(root, "A.csproj")}
		st.PrivateFeeds = []string{first.URL, second.URL}
		st.FeedTokens = map[string]string{first.URL: "t1", second.URL: "t2"}
		return st
	}
	resolver := nuget.NewResolver(nuget.ResolverOptions{PublicRegistry: public.URL})

	step := &ResolveVersionsStep{Resolver: resolver, FeedSelection: FeedSelectionFirst}
	st, err := step.Run(context.Background(), newState())
	require.NoError(t, err)
	assert.Equal(t, nuget.PackageVersions{Current: "1.0.0", Latest: "99.0.0", Source: nuget.SourcePublic}, st.PackageReport["Acme.Core"])
	assert.Equal(t, []string{"Bearer t1"}, *firstAuth)
	assert.Empty(t, *secondAuth)

	step = &ResolveVersionsStep{Resolver: resolver, FeedSelection: FeedSelectionEach}
	st, err = step.Run(context.Background(), newState())
	require.NoError(t, err)
	assert.Equal(t, nuget.PackageVersions{Current: "1.0.0", Latest: "7.0.0", Source: nuget.SourcePrivate}, st.PackageReport["Acme.Core"])
	assert.Equal(t, []string{"Bearer t2"}, *secondAuth)
}

func TestResolveVersions_UnresolvedPackage(t *testing.T) {
	public, _ := newRegistry(t, map[string][]string{})
	root := writeTree(t, map[string]string{"A.csproj": `<PackageReference Include="Ghost.Pkg" Version="0.1.0" />`})
	st := pipeline.NewPipelineState("run-1", root, "net8.0", "")
	st.ProjectFiles = []string{filepath.Join(root, "A.csproj")}

	step := &ResolveVersionsStep{Resolver: nuget.NewResolver(nuget.ResolverOptions{PublicRegistry: public.URL})}
	out, err := step.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, nuget.PackageVersions{Current: "0.1.0"}, out.PackageReport["Ghost.Pkg"])
}

func TestFinalize_RejectsMismatchedTokens(t *testing.T) {
	st := pipeline.NewPipelineState("run-1", t.TempDir(), "net8.0", "")
	st.PrivateFeeds = []string{"https://a", "https://b"}
	st.FeedTokens = map[string]string{"https://a": "x", "https://c": "y"}

	_, err := (&FinalizeStep{}).Run(context.Background(), st)
	assert.Error(t, err)
}

func TestSteps_RefuseSecondWrite(t *testing.T) {
	st := pipeline.NewPipelineState("run-1", t.TempDir(), "net8.0", "")
	out, err := (&ScanStep{}).Run(context.Background(), st)
	require.NoError(t, err)
	_, err = (&ScanStep{}).Run(context.Background(), out)
	assert.Error(t, err)
}

func TestDiscovery_ResolvesWithoutCompleter(t *testing.T) {
	f := newFixture(t)
	d := f.deps
	d.Completer = nil
	discovery, err := Discovery(d)
	require.NoError(t, err)
	require.Len(t, discovery, 4)

	st := pipeline.NewPipelineState("run-1", f.root, "net8.0", "")
	for i, step := range discovery {
		assert.Equal(t, pipeline.StepOrder[i], step.Name())
		st, err = step.Run(context.Background(), st)
		require.NoError(t, err)
	}
	assert.Equal(t, "13.0.3", st.PackageReport["Newtonsoft.Json"].Latest)
	assert.Empty(t, f.completer.prompts)
}

func TestDiscover_StopsAfterLast(t *testing.T) {
	f := newFixture(t)
	st, err := Discover(context.Background(), f.deps, pipeline.NewPipelineState("run-1", f.root, pipeline.DefaultTarget, ""), pipeline.StepDetectFeeds)
	require.NoError(t, err)
	assert.Len(t, st.ProjectFiles, 2)
	assert.Equal(t, []string{f.private.URL}, st.PrivateFeeds)
	assert.Nil(t, st.FeedTokens)
	assert.Nil(t, st.PackageReport)

	_, err = Discover(context.Background(), f.deps, pipeline.NewPipelineState("run-1", f.root, "net5.0", ""), "")
	assert.Error(t, err)
}
