// Package runner executes one fetcher instance as a subprocess under a
// hard wall-clock timeout and classifies the outcome.
package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ComplyOps/Gatherer/internal/model"
)

// stderrTailLimit bounds the stderr diagnostics kept per instance.
const stderrTailLimit = 4 * 1024

// waitDelay gives a killed child's descendants time to release the
// stderr pipe before Wait gives up on it.
const waitDelay = 10 * time.Second

// Runner runs fetcher instances against one evidence directory. The
// zero value is not usable; construct with New.
type Runner struct {
	evidenceDir string
	timeout     time.Duration
	baseEnv     []string
}

// New returns a Runner writing into evidenceDir. baseEnv is the
// environment every child inherits; instance extra variables are
// overlaid per call, the shared slice is never mutated.
func New(evidenceDir string, timeout time.Duration, baseEnv []string) Runner {
	if timeout <= 0 {
		timeout = model.DefaultTimeout
	}
	return Runner{
		evidenceDir: evidenceDir,
		timeout:     timeout,
		baseEnv:     baseEnv,
	}
}

// Run blocks until the instance's subprocess exits or the timeout
// elapses, and returns its classified result. A failing instance never
// returns an error; failures are part of the result.
func (r Runner) Run(ctx context.Context, inst model.FetcherInstance) model.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := make([]string, 0, 4+len(inst.ExtraFlags))
	args = append(args,
		inst.Binding.Profile,
		inst.Binding.Region,
		r.evidenceDir,
		os.DevNull, // CSV sink disabled
	)
	args = append(args, inst.ExtraFlags...)

	cmd := exec.CommandContext(ctx, inst.Fetcher.ScriptPath, args...)
	cmd.Env = childEnv(r.baseEnv, inst.Binding.ExtraEnv)
	cmd.WaitDelay = waitDelay

	var stderr tailWriter
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	result := model.ExecutionResult{
		InstanceName: inst.InstanceName,
		Duration:     elapsed,
		StderrTail:   stderr.String(),
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		// A partially written evidence file is not trusted.
		result.Status = model.StatusTimeout
	case err != nil:
		result.Status = model.StatusError
	case r.evidenceExists(inst):
		result.Status = model.StatusPass
	default:
		result.Status = model.StatusFail
	}
	return result
}

func (r Runner) evidenceExists(inst model.FetcherInstance) bool {
	for _, base := range inst.EvidenceBaseNames() {
		info, err := os.Stat(filepath.Join(r.evidenceDir, base+".json"))
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

// childEnv overlays extra variables on the base environment. os/exec
// resolves duplicate keys to the last occurrence, so extras win.
func childEnv(base []string, extra map[string]string) []string {
	env := make([]string, len(base), len(base)+len(extra))
	copy(env, base)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// tailWriter keeps the last stderrTailLimit bytes written.
type tailWriter struct {
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - stderrTailLimit; over > 0 {
		w.buf = w.buf[over:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}
