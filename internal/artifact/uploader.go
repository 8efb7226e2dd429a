// Package artifact moves audio clips from the upload directory to the
// backend and deletes each clip once the backend has it.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/edgebird/birdsync/internal/cloud"
	"github.com/edgebird/birdsync/internal/detections"
)

// Result is the outcome of one Upload.
type Result int

const (
	// Accepted means the backend took the clip and the local copy is gone.
	Accepted Result = iota
	// NotFound means there was no clip to send. Callers treat it as success.
	NotFound
	// Rejected means the clip was not sent and is still on disk.
	Rejected
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case NotFound:
		return "not_found"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ErrUnsafeName is returned for file names that would resolve outside the
// upload directory.
var ErrUnsafeName = errors.New("file name escapes upload directory")

// Sink receives artifacts. *cloud.Client and *cloud.S3Sink both qualify.
type Sink interface {
	PutArtifact(ctx context.Context, a cloud.Artifact) error
}

// Uploader sends the clip named by a record's file_name.
type Uploader struct {
	dir    string
	sink   Sink
	logger *zap.Logger
}

func New(dir string, sink Sink, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{dir: dir, sink: sink, logger: logger}
}

// Dir returns the upload directory.
func (u *Uploader) Dir() string {
	return u.dir
}

// Upload sends rec's clip and deletes it on success. The error is non-nil
// only for Rejected.
func (u *Uploader) Upload(ctx context.Context, rec detections.Record) (Result, error) {
	log := u.logger.With(zap.String("file_name", rec.FileName), zap.Int64("evt_timestamp", rec.EvtTimestamp))

	if rec.FileName == "" {
		log.Info("record has no audio file, skipped")
		return NotFound, nil
	}
	if !filepath.IsLocal(rec.FileName) {
		log.Error("refusing to upload audio file", zap.Error(ErrUnsafeName))
		return Rejected, fmt.Errorf("%w: %q", ErrUnsafeName, rec.FileName)
	}

	path := filepath.Join(u.dir, rec.FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("audio file not found, skipped", zap.String("path", path))
		return NotFound, nil
	}
	if err != nil {
		log.Error("failed to read audio file", zap.String("path", path), zap.Error(err))
		return Rejected, fmt.Errorf("failed to read audio file: %w", err)
	}

	err = u.sink.PutArtifact(ctx, cloud.Artifact{
		DeviceID: rec.DeviceID,
		FileName: rec.FileName,
		Data:     data,
	})
	if err != nil {
		log.Error("audio upload rejected", zap.Int("bytes", len(data)), zap.Error(err))
		return Rejected, err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("audio uploaded but local file could not be removed", zap.String("path", path), zap.Error(err))
	} else {
		log.Info("audio uploaded", zap.Int("bytes", len(data)))
	}
	return Accepted, nil
}
