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

package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Open returns a directory holding the project at uri, which is either a
// directory or a zip archive. An archive is extracted into a scratch
// directory that cleanup removes; for a directory cleanup does nothing.
func Open(uri string) (root string, cleanup func(), err error) {
	info, err := os.Stat(uri)
	if err != nil {
		return "", nil, errors.Wrapf(err, "open %s", uri)
	}
	if info.IsDir() {
		abs, err := filepath.Abs(uri)
		if err != nil {
			return "", nil, err
		}
		return abs, func() {}, nil
	}
	if !strings.EqualFold(filepath.Ext(uri), ".zip") {
		return "", nil, errors.Errorf("%s is neither a directory nor a .zip archive", uri)
	}
	tmp, err := os.MkdirTemp("", "netupgrader-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "create scratch dir")
	}
	cleanup = func() { os.RemoveAll(tmp) }
	if err := Extract(uri, tmp); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp, cleanup, nil
}
