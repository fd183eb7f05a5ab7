package runner_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/ComplyOps/Gatherer/internal/model"
	"github.com/ComplyOps/Gatherer/internal/runner"

	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
}

// script writes an executable shell fetcher and returns its path.
func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fetcher.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func instance(name, scriptPath string) model.FetcherInstance {
	return model.FetcherInstance{
		Fetcher: model.FetcherDefinition{
			Name:       name,
			Service:    "aws",
			ScriptPath: scriptPath,
		},
		InstanceName: name,
		Binding: model.TargetBinding{
			Profile: "default",
			Region:  "us-east-1",
		},
	}
}

func TestRunClassification(t *testing.T) {
	t.Parallel()
	requireSh(t)

	t.Run("exit 0 with evidence is PASS", func(t *testing.T) {
		t.Parallel()
		evidence := t.TempDir()
		path := script(t, `echo '{}' > "$3/probe.json"`)
		r := runner.New(evidence, time.Second, nil)
		res := r.Run(t.Context(), instance("probe", path))
		require.Equal(t, model.StatusPass, res.Status)
		require.Positive(t, res.Duration)
	})

	t.Run("exit 0 without evidence is FAIL", func(t *testing.T) {
		t.Parallel()
		evidence := t.TempDir()
		path := script(t, `exit 0`)
		r := runner.New(evidence, time.Second, nil)
		res := r.Run(t.Context(), instance("probe", path))
		require.Equal(t, model.StatusFail, res.Status)
	})

	t.Run("non-zero exit is ERROR", func(t *testing.T) {
		t.Parallel()
		evidence := t.TempDir()
		path := script(t, `echo 'denied' 1>&2; exit 3`)
		r := runner.New(evidence, time.Second, nil)
		res := r.Run(t.Context(), instance("probe", path))
		require.Equal(t, model.StatusError, res.Status)
		require.Contains(t, res.StderrTail, "denied")
	})

	t.Run("missing binary is ERROR", func(t *testing.T) {
		t.Parallel()
		evidence := t.TempDir()
		r := runner.New(evidence, time.Second, nil)
		res := r.Run(t.Context(), instance("probe", filepath.Join(evidence, "does-not-exist.sh")))
		require.Equal(t, model.StatusError, res.Status)
	})

	t.Run("evidence written even on non-zero exit is ERROR", func(t *testing.T) {
		t.Parallel()
		evidence := t.TempDir()
		path := script(t, `echo '{}' > "$3/probe.json"; exit 1`)
		r := runner.New(evidence, time.Second, nil)
		res := r.Run(t.Context(), instance("probe", path))
		require.Equal(t, model.StatusError, res.Status)
	})
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()
	requireSh(t)

	evidence := t.TempDir()
	path := script(t, `sleep 10`)
	r := runner.New(evidence, 100*time.Millisecond, nil)

	started := time.Now()
	res := r.Run(t.Context(), instance("sleeper", path))
	elapsed := time.Since(started)

	require.Equal(t, model.StatusTimeout, res.Status)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, 5*time.Second)
}

func TestRunArguments(t *testing.T) {
	t.Parallel()
	requireSh(t)

	evidence := t.TempDir()
	path := script(t, `printf '%s\n%s\n%s\n%s\n%s\n' "$1" "$2" "$3" "$4" "$5" > "$3/args.json"`)
	r := runner.New(evidence, time.Second, nil)

	inst := instance("args", path)
	inst.ExtraFlags = []string{"--all"}
	res := r.Run(t.Context(), inst)
	require.Equal(t, model.StatusPass, res.Status)

	raw, err := os.ReadFile(filepath.Join(evidence, "args.json"))
	require.NoError(t, err)
	require.Equal(t, "default\nus-east-1\n"+evidence+"\n"+os.DevNull+"\n--all\n", string(raw))
}

func TestRunEnvironment(t *testing.T) {
	t.Parallel()
	requireSh(t)

	evidence := t.TempDir()
	path := script(t, `printf '%s|%s' "$GITLAB_URL" "$KEPT" > "$3/env.json"`)
	r := runner.New(evidence, time.Second, []string{"KEPT=yes", "GITLAB_URL=overridden"})

	inst := instance("env", path)
	inst.Binding.ExtraEnv = map[string]string{"GITLAB_URL": "https://gitlab.example.com"}
	res := r.Run(t.Context(), inst)
	require.Equal(t, model.StatusPass, res.Status)

	raw, err := os.ReadFile(filepath.Join(evidence, "env.json"))
	require.NoError(t, err)
	// extraEnv wins on collision, the rest of the base env is inherited
	require.Equal(t, "https://gitlab.example.com|yes", string(raw))
}

func TestRunMultipliedInstanceEvidence(t *testing.T) {
	t.Parallel()
	requireSh(t)

	// the child writes under the base fetcher name, not the instance name
	evidence := t.TempDir()
	path := script(t, `echo '{}' > "$3/s3_mfa_delete.json"`)
	r := runner.New(evidence, time.Second, nil)

	inst := instance("s3_mfa_delete", path)
	inst.InstanceName = "s3_mfa_delete_region_1"
	res := r.Run(t.Context(), inst)
	require.Equal(t, model.StatusPass, res.Status)
	require.Equal(t, "s3_mfa_delete_region_1", res.InstanceName)
}
