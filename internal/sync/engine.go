package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgebird/birdsync/internal/artifact"
	"github.com/edgebird/birdsync/internal/cloud"
	"github.com/edgebird/birdsync/internal/detections"
)

// Config holds optional Engine settings.
type Config struct {
	// BatchLimit caps the records fetched per cycle. Zero means
	// detections.DefaultLimit.
	BatchLimit int

	Logger *zap.Logger
}

// Engine runs batch cycles: load the checkpoint, fetch what is newer, and
// push each record through metadata, artifact and checkpoint in order.
type Engine struct {
	checkpoint CheckpointStore
	source     RecordSource
	metadata   MetadataPoster
	artifacts  ArtifactUploader
	limit      int
	logger     *zap.Logger

	// now is swapped out by tests.
	now func() time.Time
}

// New creates an Engine. All four collaborators are required.
func New(cp CheckpointStore, src RecordSource, metadata MetadataPoster, artifacts ArtifactUploader, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.BatchLimit
	if limit <= 0 {
		limit = detections.DefaultLimit
	}
	return &Engine{
		checkpoint: cp,
		source:     src,
		metadata:   metadata,
		artifacts:  artifacts,
		limit:      limit,
		logger:     logger,
		now:        time.Now,
	}
}

// RunCycle syncs one batch.
//
// Per-record failures are logged and recorded in the result; they never
// abort the batch. The returned error is non-nil only when the record
// source fails or ctx is cancelled, and in the latter case the partial
// result is returned alongside it.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := e.now()
	res := &CycleResult{ID: uuid.NewString()}
	log := e.logger.With(zap.String("cycle_id", res.ID))

	res.Since = e.checkpoint.Load()
	res.Committed = res.Since

	batch, err := e.source.Fetch(ctx, res.Since, e.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch detections: %w", err)
	}
	res.fetched = batch.Len()
	res.MaxEpoch = batch.MaxEpoch

	if res.fetched == 0 {
		log.Info("no new detections", zap.Int64("since", res.Since))
		res.Duration = e.now().Sub(start)
		return res, nil
	}

	log.Info("fetched detections",
		zap.Int("count", res.fetched),
		zap.Int64("since", res.Since),
		zap.Int64("max_epoch", res.MaxEpoch))

	// Highest epoch written during this cycle.
	var written int64
	var wroteAny bool

	for _, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			res.Duration = e.now().Sub(start)
			log.Info("cycle interrupted",
				zap.Int("attempted", len(res.Attempts)),
				zap.Int("remaining", res.fetched-len(res.Attempts)))
			return res, err
		}

		att := e.syncRecord(ctx, log, rec)
		if att.Outcome.Cleared() {
			if wroteAny && rec.EvtTimestamp < written {
				// Never move the checkpoint backwards within a cycle.
				att.Committed = true
			} else if err := e.checkpoint.Save(rec.EvtTimestamp); err != nil {
				log.Error("failed to save checkpoint",
					zap.Int64("evt_timestamp", rec.EvtTimestamp),
					zap.Error(err))
				att.Err = err
			} else {
				att.Committed = true
				written, wroteAny = rec.EvtTimestamp, true
				res.Committed = rec.EvtTimestamp
				log.Info("detection synced",
					zap.String("file_name", rec.FileName),
					zap.Int64("evt_timestamp", rec.EvtTimestamp),
					zap.Stringer("outcome", att.Outcome))
			}
		}

		if att.Outcome.Cleared() && att.Err == nil {
			res.Synced++
		} else {
			res.Failed++
		}
		res.Attempts = append(res.Attempts, att)
	}

	res.Duration = e.now().Sub(start)
	fields := []zap.Field{
		zap.Int("attempted", len(res.Attempts)),
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Int64("since", res.Since),
		zap.Int64("checkpoint", res.Committed),
		zap.Int64("max_epoch", res.MaxEpoch),
		zap.Duration("duration", res.Duration),
	}
	if res.Failed > 0 {
		log.Warn("cycle finished with failures", fields...)
	} else {
		log.Info("cycle finished", fields...)
	}
	return res, nil
}

// syncRecord runs the metadata and artifact steps for one record. The
// checkpoint is left to the caller.
func (e *Engine) syncRecord(ctx context.Context, log *zap.Logger, rec detections.Record) Attempt {
	att := Attempt{Record: rec, Outcome: MetadataAccepted}
	recFields := []zap.Field{
		zap.String("file_name", rec.FileName),
		zap.Int64("evt_timestamp", rec.EvtTimestamp),
	}

	if err := e.metadata.PostDetection(ctx, rec); err != nil {
		att.Outcome = MetadataRejected
		att.Err = err
		e.logRejection(ctx, log, "metadata upload rejected", err, recFields)
		return att
	}

	result, err := e.artifacts.Upload(ctx, rec)
	switch result {
	case artifact.Accepted:
		att.Outcome = ArtifactAccepted
	case artifact.NotFound:
		att.Outcome = ArtifactMissing
	default:
		att.Outcome = ArtifactRejected
		if err == nil {
			err = fmt.Errorf("artifact upload returned %s", result)
		}
		att.Err = err
		e.logRejection(ctx, log, "artifact upload rejected", err, recFields)
	}
	return att
}

func (e *Engine) logRejection(ctx context.Context, log *zap.Logger, msg string, err error, fields []zap.Field) {
	fields = append(fields, zap.Error(err))

	var se *cloud.StatusError
	if errors.As(err, &se) {
		fields = append(fields, zap.Int("status", se.Code), zap.String("body", se.Body))
	}

	// Shutdown aborts in-flight requests; that is not the endpoint's fault.
	if ctx.Err() != nil {
		log.Warn(msg+" during shutdown", fields...)
		return
	}
	log.Error(msg, fields...)
}
