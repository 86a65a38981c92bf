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

package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

type Prompt interface {
	String() string
}

type TextPrompt string

func (p TextPrompt) String() string {
	return string(p)
}

func NewTextPrompt(content string) Prompt {
	return TextPrompt(content)
}

// Instructions is the fixed user brief embedded in every upgrade prompt. It
// is not configurable per run.
//
//go:embed instructions.md
var Instructions string

//go:embed analyze.md
var analyzeTemplate string

//go:embed rewrite.md
var rewriteTemplate string

var (
	analyzeTpl = template.Must(template.New("analyze").Parse(analyzeTemplate))
	rewriteTpl = template.Must(template.New("rewrite").Parse(rewriteTemplate))
)

// File is one descriptor embedded in a prompt, labelled by its relative path.
type File struct {
	Path    string
	Content string
}

// UpgradeContext is everything an upgrade prompt is built from.
type UpgradeContext struct {
	TargetVersion string
	Feeds         []string
	PackageReport any // marshalled as indented JSON
	Files         []File
}

type templateData struct {
	Instructions      string
	TargetVersion     string
	FeedsJSON         string
	PackageReportJSON string
	Files             []File
}

func (c UpgradeContext) data() (templateData, error) {
	feeds := c.Feeds
	if feeds == nil {
		feeds = []string{}
	}
	feedsJSON, err := json.Marshal(feeds)
	if err != nil {
		return templateData{}, errors.Wrap(err, "marshal feeds")
	}
	report := c.PackageReport
	if report == nil {
		report = map[string]any{}
	}
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return templateData{}, errors.Wrap(err, "marshal package report")
	}
	return templateData{
		Instructions:      strings.TrimSpace(Instructions),
		TargetVersion:     c.TargetVersion,
		FeedsJSON:         string(feedsJSON),
		PackageReportJSON: string(reportJSON),
		Files:             c.Files,
	}, nil
}

// Analysis builds the prompt asking for a structured Markdown upgrade report.
func Analysis(c UpgradeContext) (Prompt, error) {
	return render(analyzeTpl, c)
}

// Rewrite builds the prompt asking for updated descriptors as file blocks.
func Rewrite(c UpgradeContext) (Prompt, error) {
	return render(rewriteTpl, c)
}

func render(tpl *template.Template, c UpgradeContext) (Prompt, error) {
	data, err := c.data()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, errors.Wrapf(err, "render %s prompt", tpl.Name())
	}
	return TextPrompt(buf.String()), nil
}
