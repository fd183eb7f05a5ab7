package model

import "time"

// Status classifies the outcome of a single fetcher execution.
//
//   - PASS: child exited 0 and left a matching evidence file
//   - FAIL: child exited 0 but no evidence file was found (a compliance
//     failure, not a system failure)
//   - ERROR: child could not be launched or exited non-zero
//   - TIMEOUT: child exceeded its deadline and was killed
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusError   Status = "ERROR"
	StatusTimeout Status = "TIMEOUT"
)

// FetcherDefinition is one catalog entry: an external executable collecting
// one piece of compliance evidence from one service.
type FetcherDefinition struct {
	Name       string
	Service    string
	ScriptPath string
}

// TargetBinding is the concrete context a fetcher instance runs against.
// Not every field applies to every service; unused fields stay empty.
type TargetBinding struct {
	Profile   string
	Region    string
	ProjectID string
	ExtraEnv  map[string]string
}

// FetcherInstance binds one catalog entry to one target context. The
// InstanceName is unique within a run: plain fetcher name for unbound
// ("standard") fetchers, "<fetcher>_<group>_<index>" for multiplied ones.
// Instances are never mutated after creation.
type FetcherInstance struct {
	Fetcher      FetcherDefinition
	InstanceName string
	Binding      TargetBinding
	ExtraFlags   []string
}

// EvidenceBaseNames returns the file stems an instance's evidence file may
// carry, most specific first. The underlying fetcher program has no notion
// of the instance suffix, so multiplied instances usually write under the
// base fetcher name.
func (i FetcherInstance) EvidenceBaseNames() []string {
	if i.InstanceName == i.Fetcher.Name {
		return []string{i.Fetcher.Name}
	}
	return []string{i.InstanceName, i.Fetcher.Name}
}

// ExecutionResult is produced exactly once per instance.
type ExecutionResult struct {
	InstanceName string
	Status       Status
	Duration     time.Duration
	StderrTail   string
}

// EvidenceReference associates an instance with the evidence file it is
// believed to have produced. EvidenceFilePath is empty when no file
// matched.
type EvidenceReference struct {
	InstanceName     string
	Resource         string
	EvidenceFilePath string
}

// SummaryEntry is one row of the run summary. Field names are a wire
// contract consumed by the upload pipeline.
type SummaryEntry struct {
	Check        string  `json:"check"`
	Resource     string  `json:"resource"`
	Status       Status  `json:"status"`
	EvidenceFile *string `json:"evidence_file"`
}

// RunSummary is the terminal artifact of a run, written once as
// summary.json into the evidence directory.
type RunSummary struct {
	Timestamp         string         `json:"timestamp"`
	EvidenceDirectory string         `json:"evidence_directory"`
	TotalScripts      int            `json:"total_scripts"`
	SuccessfulScripts int            `json:"successful_scripts"`
	FailedScripts     int            `json:"failed_scripts"`
	Results           []SummaryEntry `json:"results"`
}
