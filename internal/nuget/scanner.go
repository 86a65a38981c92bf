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

// Package nuget knows the on-disk and on-wire shapes of .NET projects and
// NuGet feeds: descriptor discovery, package references, feed configuration,
// feed credentials and flat-container version lookups.
package nuget

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// DescriptorExt is the extension of project descriptor files.
const DescriptorExt = ".csproj"

var packageReferenceRe = regexp.MustCompile(`<PackageReference\s+Include="([^"]+)"\s+Version="([^"]+)"`)

// PackageReference is one declared dependency of a descriptor.
type PackageReference struct {
	Name    string
	Version string
}

// Descriptor is a project descriptor loaded from disk.
type Descriptor struct {
	Path    string // absolute or root-joined path
	Rel     string // slash-separated path relative to the project root
	Content string
}

// IsDescriptor reports whether name has the descriptor extension.
func IsDescriptor(name string) bool {
	return strings.HasSuffix(name, DescriptorExt)
}

// FindDescriptors walks root and returns every descriptor file in walk order.
// Callers must not depend on the ordering.
func FindDescriptors(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsDescriptor(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", root)
	}
	return out, nil
}

// ExtractPackageReferences returns every PackageReference with both an
// Include and a Version attribute. Anything else is skipped.
func ExtractPackageReferences(content string) []PackageReference {
	var refs []PackageReference
	for _, m := range packageReferenceRe.FindAllStringSubmatch(content, -1) {
		refs = append(refs, PackageReference{Name: m[1], Version: m[2]})
	}
	return refs
}

// ReadText reads a file as text, dropping byte sequences that are not valid
// UTF-8.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// ReadDescriptors loads each path and labels it relative to root.
func ReadDescriptors(root string, paths []string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(paths))
	for _, p := range paths {
		content, err := ReadText(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, errors.Wrapf(err, "relative path of %s", p)
		}
		out = append(out, Descriptor{Path: p, Rel: filepath.ToSlash(rel), Content: content})
	}
	return out, nil
}
