package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ComplyOps/Gatherer/internal/model"
)

// uploaders assembles the summary sinks configured for the service: an
// archive directory copy and/or the evidence-tracking repository.
func uploaders(cfg model.Service) ([]model.Uploader, error) {
	var ups []model.Uploader
	if cfg.Dir != "" {
		u, err := NewDirUploader(cfg.Dir)
		if err != nil {
			return nil, err
		}
		ups = append(ups, u)
	}
	if cfg.Repository != nil && cfg.Repository.Enabled {
		u, err := NewEvidenceAPIUploader(cfg.Repository.URL, cfg.Repository.Token)
		if err != nil {
			return nil, err
		}
		ups = append(ups, u)
	}
	return ups, nil
}

// WriteUploader copies the summary to an io.Writer. Used by the CLI to
// echo the summary on stdout, and by tests.
type WriteUploader struct {
	w io.Writer
}

func NewWriteUploader(w io.Writer) WriteUploader {
	return WriteUploader{w: w}
}

func (u WriteUploader) Upload(_ context.Context, raw []byte) error {
	if u.w == nil {
		u.w = os.Stdout
	}
	_, err := u.w.Write(raw)
	return err
}

// DirUploader archives each run's summary into a directory, confined
// via os.Root so a hostile summary path cannot escape it.
type DirUploader struct {
	root *os.Root
}

func NewDirUploader(path string) (*DirUploader, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &DirUploader{root: root}, nil
}

func (u *DirUploader) Upload(ctx context.Context, raw []byte) error {
	if u.root == nil {
		return errors.New("uploader already closed")
	}

	name := "gatherer-" + time.Now().Format("2006-01-02-15-04-05") + "-summary.json"
	f, err := u.root.Create(name)
	if err != nil {
		return fmt.Errorf("creating summary archive: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return fmt.Errorf("archiving summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing summary archive: %w", err)
	}
	slog.InfoContext(ctx, "summary archived", "path", name)
	return nil
}

func (u *DirUploader) Close() error {
	if u.root == nil {
		return errors.New("uploader already closed")
	}
	err := u.root.Close()
	u.root = nil
	return err
}
