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

package nuget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickLatest(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
		ok       bool
	}{
		{"prefers last stable", []string{"1.0.0", "1.1.0-beta", "1.2.0"}, "1.2.0", true},
		{"skips trailing prerelease", []string{"1.0.0", "1.2.0", "2.0.0-rc1"}, "1.2.0", true},
		{"only prerelease", []string{"2.0.0-rc1"}, "2.0.0-rc1", true},
		{"registry order is trusted", []string{"3.0.0", "1.0.0"}, "1.0.0", true},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PickLatest(tt.versions)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlatContainerURL(t *testing.T) {
	assert.Equal(t,
		"https://feed.example/v3-flatcontainer/newtonsoft.json/index.json",
		FlatContainerURL("https://feed.example/", "Newtonsoft.Json"))
}

// registry serves flat-container indexes from a map keyed by lower-cased
// package id, and records the Authorization header of every request.
type registry struct {
	mu       sync.Mutex
	versions map[string][]string
	status   int
	auth     []string
}

func (r *registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.auth = append(r.auth, req.Header.Get("Authorization"))
	r.mu.Unlock()

	if r.status != 0 {
		w.WriteHeader(r.status)
		return
	}
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "v3-flatcontainer" || parts[2] != "index.json" {
		http.NotFound(w, req)
		return
	}
	vs, ok := r.versions[parts[1]]
	if !ok {
		http.NotFound(w, req)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"versions": vs})
}

func newRegistry(t *testing.T, versions map[string][]string) (*registry, *httptest.Server) {
	reg := &registry{versions: versions}
	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)
	return reg, srv
}

func TestResolver_PublicOnly(t *testing.T) {
	_, public := newRegistry(t, map[string][]string{
		"serilog": {"2.10.0", "3.0.0-dev", "3.1.1"},
	})
	r := NewResolver(ResolverOptions{PublicRegistry: public.URL})

	got := r.Resolve(context.Background(), "Serilog", "", "")
	assert.Equal(t, Lookup{Version: "3.1.1", Source: SourcePublic}, got)
	assert.True(t, got.Found())

	// Idempotent for a fixed registry state.
	assert.Equal(t, got, r.Resolve(context.Background(), "Serilog", "", ""))
}

func TestResolver_PrivateFeedWins(t *testing.T) {
	privReg, private := newRegistry(t, map[string][]string{"acme.core": {"1.0.0", "1.4.0"}})
	pubReg, public := newRegistry(t, map[string][]string{"acme.core": {"9.9.9"}})
	r := NewResolver(ResolverOptions{PublicRegistry: public.URL})

	got := r.Resolve(context.Background(), "Acme.Core", private.URL, "tok")
	assert.Equal(t, Lookup{Version: "1.4.0", Source: SourcePrivate}, got)
	assert.Equal(t, []string{"Bearer tok"}, privReg.auth)
	assert.Empty(t, pubReg.auth, "public registry must not be queried after a private hit")
}

func TestResolver_PrivateFailureFallsBack(t *testing.T) {
	privReg, private := newRegistry(t, nil)
	privReg.status = http.StatusUnauthorized
	pubReg, public := newRegistry(t, map[string][]string{"acme.core": {"2.0.0"}})
	r := NewResolver(ResolverOptions{PublicRegistry: public.URL})

	got := r.Resolve(context.Background(), "Acme.Core", private.URL, "tok")
	assert.Equal(t, Lookup{Version: "2.0.0", Source: SourcePublic}, got)
	require.Len(t, pubReg.auth, 1)
	assert.Empty(t, pubReg.auth[0], "token must not leak to the public registry")
}

func TestResolver_EmptyPrivateListFallsBack(t *testing.T) {
	_, private := newRegistry(t, map[string][]string{"acme.core": {}})
	_, public := newRegistry(t, map[string][]string{"acme.core": {"2.0.0"}})
	r := NewResolver(ResolverOptions{PublicRegistry: public.URL})

	got := r.Resolve(context.Background(), "acme.core", private.URL, "")
	assert.Equal(t, SourcePublic, got.Source)
}

func TestResolver_NothingFound(t *testing.T) {
	_, public := newRegistry(t, nil)
	r := NewResolver(ResolverOptions{PublicRegistry: public.URL})

	got := r.Resolve(context.Background(), "does.not.exist", "http://127.0.0.1:1", "")
	assert.False(t, got.Found())
	assert.Equal(t, Lookup{}, got)
}

func TestResolver_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	r := NewResolver(ResolverOptions{PublicRegistry: slow.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	got := r.Resolve(context.Background(), "x", "", "")
	assert.False(t, got.Found())
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolver_ResolveAny_TriesFeedsInOrder(t *testing.T) {
	first, firstSrv := newRegistry(t, nil)
	first.status = http.StatusNotFound
	second, secondSrv := newRegistry(t, map[string][]string{"acme.core": {"5.0.0"}})
	pub, public := newRegistry(t, map[string][]string{"acme.core": {"9.0.0"}})
	r := NewResolver(ResolverOptions{PublicRegistry: public.URL})

	got := r.ResolveAny(context.Background(), "Acme.Core", []FeedCredential{
		{URL: firstSrv.URL, Token: "one"},
		{URL: secondSrv.URL, Token: "two"},
	})
	assert.Equal(t, Lookup{Version: "5.0.0", Source: SourcePrivate}, got)
	assert.Equal(t, []string{"Bearer one"}, first.auth)
	assert.Equal(t, []string{"Bearer two"}, second.auth)
	assert.Empty(t, pub.auth)
}
