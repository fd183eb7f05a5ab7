// Package correlate associates finished instances with the evidence
// files they are believed to have produced.
//
// The matching is heuristic: the child contract does not thread the
// instance identity through to the output filename, so a multiplied
// instance typically writes under the base fetcher name. Fetchers that
// accept an explicit output name and write <instanceName>.json are
// matched exactly and never reach the fallbacks.
package correlate

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ComplyOps/Gatherer/internal/model"
)

// groupSuffix matches the multiplication suffix appended to instance
// names, e.g. "_project_1" or "_region_2".
var groupSuffix = regexp.MustCompile(`_(project|region)_[^_]+$`)

// summary and log artifacts living in the evidence directory; never
// evidence themselves.
var reserved = map[string]bool{
	"summary.json":           true,
	"execution_summary.json": true,
}

type Correlator struct {
	evidenceDir string
}

func New(evidenceDir string) Correlator {
	return Correlator{evidenceDir: evidenceDir}
}

// Resolve finds the evidence file for one instance. The reference's
// EvidenceFilePath stays empty when nothing matches; the instance's
// status is not affected by that.
func (c Correlator) Resolve(inst model.FetcherInstance) model.EvidenceReference {
	ref := model.EvidenceReference{
		InstanceName: inst.InstanceName,
		Resource:     resourceLabel(inst),
	}

	if path, ok := c.exists(inst.InstanceName); ok {
		ref.EvidenceFilePath = path
		return ref
	}

	base := groupSuffix.ReplaceAllString(inst.InstanceName, "")
	if base != inst.InstanceName {
		if path, ok := c.exists(base); ok {
			ref.EvidenceFilePath = path
			return ref
		}
	}

	if path, ok := c.scan(base); ok {
		ref.EvidenceFilePath = path
	}
	return ref
}

func (c Correlator) exists(stem string) (string, bool) {
	path := filepath.Join(c.evidenceDir, stem+".json")
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// scan accepts the first evidence file whose stem is a prefix of, or is
// prefixed by, the candidate base name. Directory order is
// lexicographic, which keeps the choice deterministic.
func (c Correlator) scan(base string) (string, bool) {
	entries, err := os.ReadDir(c.evidenceDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || reserved[name] || !strings.HasSuffix(name, ".json") {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")
		if strings.HasPrefix(stem, base) || strings.HasPrefix(base, stem) {
			return filepath.Join(c.evidenceDir, name), true
		}
	}
	return "", false
}

// resourceLabel extracts a human-meaningful resource for the summary:
// explicit binding fields first, then the multiplication-group label
// parsed out of the instance name, then "unknown".
func resourceLabel(inst model.FetcherInstance) string {
	switch {
	case inst.Binding.ProjectID != "":
		return inst.Binding.ProjectID
	case inst.Binding.Region != "":
		return inst.Binding.Region
	case inst.Binding.Profile != "":
		return inst.Binding.Profile
	}
	if m := groupSuffix.FindString(inst.InstanceName); m != "" {
		return strings.TrimPrefix(m, "_")
	}
	return "unknown"
}
