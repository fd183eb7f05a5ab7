package model

import "context"

// Uploader receives the serialized run summary once per run.
type Uploader interface {
	Upload(ctx context.Context, raw []byte) error
}

type UploadCloser interface {
	Uploader
	Close() error
}
