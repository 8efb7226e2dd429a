// Package sync drains new detections to the cloud with at-least-once
// delivery.
//
// # Cycle
//
// One call to RunCycle is one batch:
//
//	checkpoint.Load ──► detections.Fetch(since, limit)
//	                         │
//	                         ▼  for each record, oldest first
//	              ┌── PostDetection ──── rejected ──► next record
//	              │        │ 200
//	              │        ▼
//	              │   artifact.Upload ── rejected ──► next record
//	              │        │ accepted / not found
//	              │        ▼
//	              └── checkpoint.Save(evt_timestamp)
//
// # Checkpoint Advancement
//
// The checkpoint is written after every record that clears both steps, using
// that record's own evt_timestamp. A failure does not stop the batch, so a
// later success can move the checkpoint past a record that failed earlier in
// the same batch; that record is not retried. Records after the last
// committed one are re-sent on the next cycle, so the backend must tolerate
// duplicates.
//
// The batch's MaxEpoch is reported in the cycle summary and never used for
// the checkpoint.
//
// # Errors
//
// Endpoint rejections, transport failures, unreadable clips and checkpoint
// write failures are logged and counted in the CycleResult. RunCycle only
// returns an error when the record source fails or the context is
// cancelled between records.
package sync
