package sync

import (
	"context"

	"github.com/edgebird/birdsync/internal/artifact"
	"github.com/edgebird/birdsync/internal/detections"
)

// CheckpointStore holds the watermark between cycles and across restarts.
//
// Implemented by *checkpoint.Store.
type CheckpointStore interface {
	// Load returns the epoch to resume from. It never fails: a missing,
	// corrupt or future checkpoint yields the default lookback instead.
	Load() int64

	// Save records epoch as the last fully synced detection.
	Save(epoch int64) error
}

// RecordSource supplies detections newer than a watermark.
//
// Implemented by *detections.Store.
type RecordSource interface {
	// Fetch returns up to limit detections with event time strictly after
	// sinceEpoch, oldest first. An empty batch is not an error. An error
	// means the source itself is unusable and the cycle cannot run.
	Fetch(ctx context.Context, sinceEpoch int64, limit int) (*detections.Batch, error)
}

// MetadataPoster delivers one detection's metadata.
//
// Implemented by *cloud.Client.
type MetadataPoster interface {
	// PostDetection returns nil only when the endpoint accepted the record.
	PostDetection(ctx context.Context, rec detections.Record) error
}

// ArtifactUploader delivers one detection's audio clip.
//
// Implemented by *artifact.Uploader.
type ArtifactUploader interface {
	// Upload returns Accepted or NotFound when the record may be committed,
	// Rejected otherwise.
	Upload(ctx context.Context, rec detections.Record) (artifact.Result, error)
}
