package detections

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one column of a detection row, key already lowercased.
type Field struct {
	Key   string
	Value any
}

// Record is one detection ready for upload.
//
// Fields carries every column of the row except date and time, in column
// order, and is passed to the ingestion endpoint untouched. DeviceID,
// FileName and EvtTimestamp are lifted out because the sync loop depends on
// them.
type Record struct {
	Fields       []Field
	DeviceID     string
	FileName     string
	EvtTimestamp int64
}

// Get returns the value of the named field.
func (r Record) Get(key string) (any, bool) {
	if key == "device_id" {
		return r.DeviceID, true
	}
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the record as a flat JSON object: the row's fields in
// column order followed by device_id.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, f.Key, f.Value); err != nil {
			return nil, err
		}
	}
	if len(r.Fields) > 0 {
		buf.WriteByte(',')
	}
	if err := writeMember(&buf, "device_id", r.DeviceID); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode field %q: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// Batch is the result of one Fetch, in ascending event time.
type Batch struct {
	Records []Record

	// MaxEpoch is the largest EvtTimestamp in the batch, zero when empty.
	// It is informational; the checkpoint follows individual records.
	MaxEpoch int64
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}
