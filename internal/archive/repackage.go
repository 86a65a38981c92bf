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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/nuget"
)

var targetFrameworkRe = regexp.MustCompile(`<TargetFramework>.*?</TargetFramework>`)

// OutputPath names the upgraded archive for one run inside dir.
func OutputPath(dir, target, runID string) string {
	name := fmt.Sprintf("AI_Upgraded_%s.zip", target)
	if runID != "" {
		name = fmt.Sprintf("AI_Upgraded_%s_%s.zip", target, runID)
	}
	return filepath.Join(dir, name)
}

// RetargetDescriptor replaces every declared target framework with target.
func RetargetDescriptor(content, target string) string {
	return string(retargetBytes([]byte(content), target))
}

// retargetBytes works on raw bytes so content in any encoding is kept as is.
func retargetBytes(data []byte, target string) []byte {
	return targetFrameworkRe.ReplaceAllLiteral(data, []byte("<TargetFramework>"+target+"</TargetFramework>"))
}

// Repackage writes the tree at root into a zip at out. Files named in
// updates (slash-separated, relative to root) get the replacement content;
// other descriptors are retargeted; everything else is copied as is.
func Repackage(root string, updates map[string]string, target, out string) (string, error) {
	outAbs, err := filepath.Abs(out)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(outAbs), 0755); err != nil {
		return "", errors.Wrapf(err, "create %s", filepath.Dir(outAbs))
	}
	f, err := os.Create(outAbs)
	if err != nil {
		return "", errors.Wrapf(err, "create archive %s", outAbs)
	}

	zw := zip.NewWriter(f)
	werr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == outAbs {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addEntry(zw, path, filepath.ToSlash(rel), updates, target)
	})
	if werr != nil {
		zw.Close()
		f.Close()
		os.Remove(outAbs)
		return "", errors.Wrapf(werr, "repackage %s", root)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(outAbs)
		return "", errors.Wrap(err, "finish archive")
	}
	if err := f.Close(); err != nil {
		os.Remove(outAbs)
		return "", errors.Wrap(err, "close archive")
	}
	return outAbs, nil
}

func addEntry(zw *zip.Writer, path, rel string, updates map[string]string, target string) error {
	header := &zip.FileHeader{Name: rel, Method: zip.Deflate}
	if content, ok := updates[rel]; ok {
		return writeEntry(zw, header, content)
	}
	if nuget.IsDescriptor(rel) {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		return writeEntry(zw, header, string(retargetBytes(data, target)))
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err = zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = rel
	header.Method = zip.Deflate

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func writeEntry(zw *zip.Writer, header *zip.FileHeader, content string) error {
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, content)
	return err
}
