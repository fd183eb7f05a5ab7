package summary_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ComplyOps/Gatherer/internal/model"
	"github.com/ComplyOps/Gatherer/internal/summary"

	"github.com/stretchr/testify/require"
)

func sampleBuilder(dir string) *summary.Builder {
	b := summary.NewBuilder(dir)
	b.Append(
		model.ExecutionResult{InstanceName: "s3_mfa_delete_region_1", Status: model.StatusPass},
		model.EvidenceReference{
			InstanceName:     "s3_mfa_delete_region_1",
			Resource:         "us-east-1",
			EvidenceFilePath: filepath.Join(dir, "s3_mfa_delete.json"),
		},
	)
	b.Append(
		model.ExecutionResult{InstanceName: "okta_iam_core", Status: model.StatusFail},
		model.EvidenceReference{InstanceName: "okta_iam_core", Resource: "unknown"},
	)
	b.Append(
		model.ExecutionResult{InstanceName: "broken", Status: model.StatusError},
		model.EvidenceReference{InstanceName: "broken", Resource: "unknown"},
	)
	return b
}

func TestSummary(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	s := sampleBuilder(dir).Summary(now)

	require.Equal(t, "2025-03-14T15:09:26Z", s.Timestamp)
	require.Equal(t, dir, s.EvidenceDirectory)
	require.Equal(t, 3, s.TotalScripts)
	require.Equal(t, 1, s.SuccessfulScripts)
	require.Equal(t, 2, s.FailedScripts)
	require.Len(t, s.Results, 3)

	t.Run("entry order follows append order", func(t *testing.T) {
		require.Equal(t, "s3_mfa_delete_region_1", s.Results[0].Check)
		require.Equal(t, "okta_iam_core", s.Results[1].Check)
	})
}

func TestSummaryIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	now := time.Now()

	b := sampleBuilder(dir)
	first, err := summary.Encode(b.Summary(now))
	require.NoError(t, err)
	second, err := summary.Encode(b.Summary(now))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSummaryWireFormat(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	raw, err := summary.Encode(sampleBuilder(dir).Summary(time.Now()))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{
		"timestamp", "evidence_directory",
		"total_scripts", "successful_scripts", "failed_scripts",
		"results",
	} {
		require.Contains(t, decoded, key)
	}

	results := decoded["results"].([]any)
	first := results[0].(map[string]any)
	require.Equal(t, "s3_mfa_delete_region_1", first["check"])
	require.Equal(t, "us-east-1", first["resource"])
	require.Equal(t, "PASS", first["status"])

	t.Run("missing evidence file serializes as null", func(t *testing.T) {
		second := results[1].(map[string]any)
		require.Contains(t, second, "evidence_file")
		require.Nil(t, second["evidence_file"])
	})
}

func TestWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := sampleBuilder(dir).Summary(time.Now())

	path, err := summary.Write(s)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, summary.Filename), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	encoded, err := summary.Encode(s)
	require.NoError(t, err)
	require.Equal(t, encoded, raw)
}

func TestDegraded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scenario string
		statuses []model.Status
		want     bool
	}{
		{"all pass", []model.Status{model.StatusPass}, false},
		{"fail alone is not degraded", []model.Status{model.StatusPass, model.StatusFail}, false},
		{"error degrades", []model.Status{model.StatusPass, model.StatusError}, true},
		{"timeout degrades", []model.Status{model.StatusTimeout}, true},
		{"empty run", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			b := summary.NewBuilder(t.TempDir())
			for i, status := range tc.statuses {
				b.Append(
					model.ExecutionResult{InstanceName: string(rune('a' + i)), Status: status},
					model.EvidenceReference{},
				)
			}
			require.Equal(t, tc.want, summary.Degraded(b.Summary(time.Now())))
		})
	}
}
