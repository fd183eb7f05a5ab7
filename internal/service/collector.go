package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ComplyOps/Gatherer/internal/catalog"
	"github.com/ComplyOps/Gatherer/internal/correlate"
	"github.com/ComplyOps/Gatherer/internal/expand"
	"github.com/ComplyOps/Gatherer/internal/log"
	"github.com/ComplyOps/Gatherer/internal/model"
	"github.com/ComplyOps/Gatherer/internal/runner"
	"github.com/ComplyOps/Gatherer/internal/summary"
)

// evidenceDirFormat names one run's directory under the evidence root.
const evidenceDirFormat = "20060102_150405"

// Collector owns one expanded run plan and executes it: every instance
// as a subprocess, then correlation, then the summary, then upload.
type Collector struct {
	cfg       model.Config
	cat       *catalog.Catalog
	expansion expand.Expansion
	baseEnv   []string
	uploaders []model.Uploader
	now       func() time.Time
}

// NewCollector loads the catalog and expands the environment snapshot
// into the run plan. The snapshot is taken once; the ambient process
// environment is never re-read and never mutated.
func NewCollector(ctx context.Context, cfg model.Config, environ []string) (*Collector, error) {
	env, err := expand.ParseEnviron(environ)
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog, cfg.Fetchers)
	if err != nil {
		return nil, err
	}

	expansion, err := expand.Expand(env, cat)
	if err != nil {
		return nil, fmt.Errorf("expanding configuration: %w", err)
	}
	for _, id := range expansion.DroppedGroups {
		slog.DebugContext(ctx, "incomplete multiplication group dropped", "group", id)
	}
	for _, name := range expansion.UnknownFetchers {
		slog.WarnContext(ctx, "fetcher not in catalog, skipping", "fetcher", name)
	}

	uploaders, err := uploaders(cfg.Service)
	if err != nil {
		return nil, fmt.Errorf("initializing uploaders: %w", err)
	}

	return &Collector{
		cfg:       cfg,
		cat:       cat,
		expansion: expansion,
		baseEnv:   environ,
		uploaders: uploaders,
		now:       time.Now,
	}, nil
}

// WithUploaders replaces the configured uploaders. For unit testing.
func (c *Collector) WithUploaders(ctx context.Context, uploaders ...model.Uploader) *Collector {
	c.closeUploaders(ctx)
	c.uploaders = uploaders
	return c
}

// AddUploader registers an additional summary sink next to the
// configured ones.
func (c *Collector) AddUploader(u model.Uploader) *Collector {
	c.uploaders = append(c.uploaders, u)
	return c
}

// Plan returns the expanded instances in execution order.
func (c *Collector) Plan() []model.FetcherInstance {
	return c.expansion.Instances
}

// Timeout is the effective per-instance timeout: FETCHER_TIMEOUT beats
// the config file, which beats the built-in default.
func (c *Collector) Timeout() time.Duration {
	if t := c.expansion.Defaults.Timeout; t > 0 {
		return t
	}
	if c.cfg.Timeout > 0 {
		return c.cfg.Timeout
	}
	return model.DefaultTimeout
}

// Do executes one full run and returns its summary. The returned error
// is model.ErrRunDegraded when any instance ended in ERROR or TIMEOUT;
// FAIL entries alone leave the error nil.
func (c *Collector) Do(ctx context.Context) (model.RunSummary, error) {
	instances := c.expansion.Instances
	evidenceDir := filepath.Join(c.cfg.EvidenceRoot, c.now().Format(evidenceDirFormat))
	if err := os.MkdirAll(evidenceDir, 0o755); err != nil {
		return model.RunSummary{}, fmt.Errorf("creating evidence directory: %w", err)
	}
	slog.InfoContext(ctx, "run started",
		"evidence_dir", evidenceDir,
		"instances", len(instances),
		"timeout", c.Timeout().String(),
	)

	run := runner.New(evidenceDir, c.Timeout(), c.baseEnv)
	results := make([]model.ExecutionResult, len(instances))

	// Instances share no mutable state beyond the evidence directory,
	// which is append-only with collision-free names, so they may run
	// in parallel. Each keeps its own independent timeout.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.cfg.Workers))
	for i, inst := range instances {
		g.Go(func() error {
			ictx := log.ContextAttrs(gctx,
				slog.String("check", inst.InstanceName),
				slog.String("service", inst.Fetcher.Service),
			)
			results[i] = run.Run(ictx, inst)
			logResult(ictx, results[i])
			return nil
		})
	}
	_ = g.Wait() // instance failures live in results, not errors

	correlator := correlate.New(evidenceDir)
	builder := summary.NewBuilder(evidenceDir)
	for i, inst := range instances {
		builder.Append(results[i], correlator.Resolve(inst))
	}

	s := builder.Summary(c.now())
	path, err := summary.Write(s)
	if err != nil {
		return s, err
	}
	slog.InfoContext(ctx, "run finished",
		"summary", path,
		"total", s.TotalScripts,
		"successful", s.SuccessfulScripts,
		"failed", s.FailedScripts,
	)

	if err := c.upload(ctx, s); err != nil {
		slog.ErrorContext(ctx, "summary upload failed", "error", err)
		return s, err
	}
	if summary.Degraded(s) {
		return s, model.ErrRunDegraded
	}
	return s, nil
}

// Close releases the uploaders.
func (c *Collector) Close(ctx context.Context) {
	c.closeUploaders(ctx)
}

func (c *Collector) upload(ctx context.Context, s model.RunSummary) error {
	if len(c.uploaders) == 0 {
		return nil
	}
	raw, err := summary.Encode(s)
	if err != nil {
		return err
	}
	var errs []error
	for _, u := range c.uploaders {
		if err := u.Upload(ctx, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Collector) closeUploaders(ctx context.Context) {
	for _, u := range c.uploaders {
		if closer, ok := u.(model.UploadCloser); ok {
			if err := closer.Close(); err != nil {
				slog.ErrorContext(ctx, "closing uploader failed", "error", err)
			}
		}
	}
	c.uploaders = nil
}

func logResult(ctx context.Context, res model.ExecutionResult) {
	attrs := []any{
		"status", string(res.Status),
		"elapsed", res.Duration.String(),
	}
	switch res.Status {
	case model.StatusPass, model.StatusFail:
		slog.InfoContext(ctx, "fetcher finished", attrs...)
	default:
		if res.StderrTail != "" {
			attrs = append(attrs, "stderr", res.StderrTail)
		}
		slog.ErrorContext(ctx, "fetcher did not execute", attrs...)
	}
}
