package sync

import (
	"fmt"
	"time"

	"github.com/edgebird/birdsync/internal/detections"
)

// Outcome is how far a record got through the upload sequence.
type Outcome int

const (
	// MetadataAccepted is the intermediate state between the metadata post
	// and the artifact upload. A finished Attempt never carries it.
	MetadataAccepted Outcome = iota
	MetadataRejected
	ArtifactAccepted
	ArtifactMissing
	ArtifactRejected
)

func (o Outcome) String() string {
	switch o {
	case MetadataAccepted:
		return "metadata_accepted"
	case MetadataRejected:
		return "metadata_rejected"
	case ArtifactAccepted:
		return "artifact_accepted"
	case ArtifactMissing:
		return "artifact_missing"
	case ArtifactRejected:
		return "artifact_rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Cleared reports whether both upload steps are done, which is what allows
// the checkpoint to move to the record.
func (o Outcome) Cleared() bool {
	return o == ArtifactAccepted || o == ArtifactMissing
}

// Attempt is the result of syncing one record.
type Attempt struct {
	Record  detections.Record
	Outcome Outcome

	// Committed is true when the checkpoint now points at this record.
	Committed bool

	// Err is the rejection or checkpoint error, if any.
	Err error
}

// CycleResult summarizes one batch cycle.
type CycleResult struct {
	ID string

	// Since is the watermark the batch was fetched from.
	Since int64
	// Committed is the checkpoint value after the cycle. It equals Since
	// when nothing was committed.
	Committed int64
	// MaxEpoch is the newest event time in the batch.
	MaxEpoch int64

	Attempts []Attempt
	Synced   int
	Failed   int
	Duration time.Duration

	fetched int
}

// Fetched returns how many records the batch held. On cancellation it can
// exceed len(Attempts).
func (r *CycleResult) Fetched() int {
	return r.fetched
}

// Empty reports whether the cycle found nothing to sync.
func (r *CycleResult) Empty() bool {
	return r.fetched == 0
}
