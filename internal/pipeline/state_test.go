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

package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/netupgrader/internal/nuget"
)

func TestClaim(t *testing.T) {
	st := &PipelineState{}
	require.NoError(t, st.Claim(FieldPrivateFeeds, StepDetectFeeds))

	err := st.Claim(FieldPrivateFeeds, StepIssueCredentials)
	require.Error(t, err)
	assert.Contains(t, err.Error(), StepDetectFeeds)

	owner, ok := st.Writer(FieldPrivateFeeds)
	assert.True(t, ok)
	assert.Equal(t, StepDetectFeeds, owner)
}

func TestClone_IsDeep(t *testing.T) {
	st := &PipelineState{
		PrivateFeeds:  []string{"a"},
		FeedTokens:    map[string]string{"a": "t"},
		PackageReport: map[string]nuget.PackageVersions{"P": {Current: "1"}},
		FileUpdates:   map[string]string{"x": "y"},
	}
	require.NoError(t, st.Claim(FieldPrivateFeeds, StepDetectFeeds))

	c := st.Clone()
	c.PrivateFeeds[0] = "b"
	c.FeedTokens["a"] = "changed"
	c.PackageReport["Q"] = nuget.PackageVersions{}
	c.FileUpdates["x"] = "z"
	require.NoError(t, c.Claim(FieldFeedTokens, StepIssueCredentials))

	assert.Equal(t, []string{"a"}, st.PrivateFeeds)
	assert.Equal(t, "t", st.FeedTokens["a"])
	assert.Len(t, st.PackageReport, 1)
	assert.Equal(t, "y", st.FileUpdates["x"])
	_, claimed := st.Writer(FieldFeedTokens)
	assert.False(t, claimed)

	// Claims made before cloning carry over.
	assert.Error(t, c.Claim(FieldPrivateFeeds, "other"))
}

func TestFingerprint_IgnoresHistory(t *testing.T) {
	a := NewPipelineState("r", "/p", "net8.0", "")
	b := a.Clone()
	b.History = append(b.History, StepRecord{StepName: StepScan, StartedAt: time.Now()})
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.AnalysisReport = "different"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestIsKnownTarget(t *testing.T) {
	assert.True(t, IsKnownTarget("net8.0"))
	assert.True(t, IsKnownTarget("net9.0-preview"))
	assert.False(t, IsKnownTarget("net48"))
}
