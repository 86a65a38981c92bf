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
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FeedConfigName is the feed configuration file name, matched case-insensitively.
const FeedConfigName = "nuget.config"

var feedSourceRe = regexp.MustCompile(`<add key=".*?" value="(.*?)"`)

// DetectFeeds returns the private feeds for a project. A non-empty userFeed
// wins outright and is never merged with discovered feeds. Otherwise every
// configured source value under root is returned, de-duplicated and sorted.
func DetectFeeds(root, userFeed string) ([]string, error) {
	if userFeed != "" {
		return []string{userFeed}, nil
	}

	seen := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(d.Name(), FeedConfigName) {
			return nil
		}
		text, err := ReadText(path)
		if err != nil {
			return err
		}
		for _, feed := range ParseFeedSources(text) {
			seen[feed] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "detect feeds under %s", root)
	}

	feeds := make([]string, 0, len(seen))
	for feed := range seen {
		feeds = append(feeds, feed)
	}
	sort.Strings(feeds)
	return feeds, nil
}

// ParseFeedSources extracts the non-empty value of every
// <add key="..." value="..."> declaration in a feed configuration.
func ParseFeedSources(text string) []string {
	var out []string
	for _, m := range feedSourceRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		}
	}
	return out
}
