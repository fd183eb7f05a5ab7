// Package summary builds and writes the run's terminal artifact,
// summary.json. Its schema is the sole contract consumed by the upload
// pipeline.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ComplyOps/Gatherer/internal/model"
)

// Filename of the summary inside the evidence directory.
const Filename = "summary.json"

// Builder accumulates execution results paired with their evidence
// references, in execution order.
type Builder struct {
	evidenceDir string
	entries     []model.SummaryEntry
}

func NewBuilder(evidenceDir string) *Builder {
	return &Builder{
		evidenceDir: evidenceDir,
		// schema requires results to be a list, not null
		entries: []model.SummaryEntry{},
	}
}

func (b *Builder) Append(res model.ExecutionResult, ref model.EvidenceReference) *Builder {
	entry := model.SummaryEntry{
		Check:    res.InstanceName,
		Resource: ref.Resource,
		Status:   res.Status,
	}
	if ref.EvidenceFilePath != "" {
		path := ref.EvidenceFilePath
		entry.EvidenceFile = &path
	}
	b.entries = append(b.entries, entry)
	return b
}

// Summary returns the aggregate document. It is a pure function of the
// appended entries plus the given timestamp: two calls with the same
// inputs produce identical output.
func (b *Builder) Summary(now time.Time) model.RunSummary {
	successful := 0
	for _, e := range b.entries {
		if e.Status == model.StatusPass {
			successful++
		}
	}
	return model.RunSummary{
		Timestamp:         now.UTC().Format(time.RFC3339),
		EvidenceDirectory: b.evidenceDir,
		TotalScripts:      len(b.entries),
		SuccessfulScripts: successful,
		FailedScripts:     len(b.entries) - successful,
		Results:           b.entries,
	}
}

// Degraded reports whether any instance ended in ERROR or TIMEOUT. FAIL
// is a compliance failure, not a system one, and does not degrade the
// run.
func Degraded(s model.RunSummary) bool {
	for _, e := range s.Results {
		if e.Status == model.StatusError || e.Status == model.StatusTimeout {
			return true
		}
	}
	return false
}

// Encode serializes a summary the way Write stores it.
func Encode(s model.RunSummary) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Write stores the summary into the evidence directory and returns its
// path.
func Write(s model.RunSummary) (string, error) {
	raw, err := Encode(s)
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}
	path := filepath.Join(s.EvidenceDirectory, Filename)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}
	return path, nil
}
