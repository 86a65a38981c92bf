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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/log"
)

const (
	DefaultPublicRegistry = "https://api.nuget.org"
	DefaultLookupTimeout  = 6 * time.Second
)

// Source says where a resolved version came from.
type Source string

const (
	SourceNone    Source = ""
	SourcePrivate Source = "private"
	SourcePublic  Source = "public"
)

// Lookup is the outcome of a version resolution. The zero value means the
// package was looked up and nothing was found.
type Lookup struct {
	Version string
	Source  Source
}

func (l Lookup) Found() bool { return l.Source != SourceNone }

// PackageVersions is one package report entry.
type PackageVersions struct {
	Current string `json:"current" yaml:"current"`
	Latest  string `json:"latest,omitempty" yaml:"latest,omitempty"`
	Source  Source `json:"source,omitempty" yaml:"source,omitempty"`
}

type ResolverOptions struct {
	PublicRegistry string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Resolver finds the latest version of a package on a private feed and the
// public registry. It never returns an error: every network failure collapses
// into a fall-through and, finally, an empty Lookup.
type Resolver struct {
	client  *http.Client
	public  string
	timeout time.Duration
}

func NewResolver(opts ResolverOptions) *Resolver {
	if opts.PublicRegistry == "" {
		opts.PublicRegistry = DefaultPublicRegistry
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLookupTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Resolver{client: client, public: opts.PublicRegistry, timeout: opts.Timeout}
}

// FeedCredential is a private feed and the bearer token to present to it.
type FeedCredential struct {
	URL   string
	Token string
}

// Resolve tries feedURL first when given and returns its answer if it has
// one. Otherwise the public registry answers. Each source is attempted once.
func (r *Resolver) Resolve(ctx context.Context, name, feedURL, token string) Lookup {
	var feeds []FeedCredential
	if feedURL != "" {
		feeds = []FeedCredential{{URL: feedURL, Token: token}}
	}
	return r.ResolveAny(ctx, name, feeds)
}

// ResolveAny tries each private feed in order, then the public registry.
func (r *Resolver) ResolveAny(ctx context.Context, name string, feeds []FeedCredential) Lookup {
	for _, feed := range feeds {
		if feed.URL == "" {
			continue
		}
		versions, err := r.fetch(ctx, feed.URL, name, feed.Token)
		if err != nil {
			log.Debug("private feed lookup of %s on %s failed: %v", name, feed.URL, err)
			continue
		}
		if v, ok := PickLatest(versions); ok {
			return Lookup{Version: v, Source: SourcePrivate}
		}
	}

	versions, err := r.fetch(ctx, r.public, name, "")
	if err != nil {
		log.Debug("public lookup of %s failed: %v", name, err)
		return Lookup{}
	}
	if v, ok := PickLatest(versions); ok {
		return Lookup{Version: v, Source: SourcePublic}
	}
	return Lookup{}
}

// FlatContainerURL is the flat-container index of a package on a feed.
func FlatContainerURL(base, name string) string {
	return fmt.Sprintf("%s/v3-flatcontainer/%s/index.json", strings.TrimRight(base, "/"), strings.ToLower(name))
}

type flatContainerIndex struct {
	Versions []string `json:"versions"`
}

func (r *Resolver) fetch(ctx context.Context, base, name, token string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, FlatContainerURL(base, name), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var idx flatContainerIndex
	if err := json.NewDecoder(resp.Body).Decode(&idx); err != nil {
		return nil, errors.Wrap(err, "decode index")
	}
	return idx.Versions, nil
}

// PickLatest trusts the registry ordering: the last stable version wins, and
// without any stable version the last version does.
func PickLatest(versions []string) (string, bool) {
	if len(versions) == 0 {
		return "", false
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if IsStable(versions[i]) {
			return versions[i], true
		}
	}
	return versions[len(versions)-1], true
}

// IsStable reports whether v has no pre-release separator.
func IsStable(v string) bool {
	return !strings.Contains(v, "-")
}
