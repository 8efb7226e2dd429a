package detections

import (
	"encoding/json"
	"testing"
)

func TestRecord_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "fields keep column order",
			rec: Record{
				Fields: []Field{
					{"sci_name", "Pica pica"},
					{"confidence", 0.9},
					{"file_name", "m.mp3"},
					{"evt_timestamp", int64(1718000000)},
				},
				DeviceID: "birdpi",
			},
			want: `{"sci_name":"Pica pica","confidence":0.9,"file_name":"m.mp3","evt_timestamp":1718000000,"device_id":"birdpi"}`,
		},
		{
			name: "no fields",
			rec:  Record{DeviceID: "birdpi"},
			want: `{"device_id":"birdpi"}`,
		},
		{
			name: "null values",
			rec: Record{
				Fields:   []Field{{"file_name", nil}},
				DeviceID: "",
			},
			want: `{"file_name":null,"device_id":""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.rec)
			if err != nil {
				t.Fatalf("Marshal() failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestRecord_MarshalJSON_Unsupported(t *testing.T) {
	rec := Record{Fields: []Field{{"bad", make(chan int)}}}
	if _, err := json.Marshal(rec); err == nil {
		t.Error("Marshal() with a channel value should fail")
	}
}

func TestSetField_LaterColumnWins(t *testing.T) {
	fields := setField(nil, "week", int64(1))
	fields = setField(fields, "lat", 1.5)
	fields = setField(fields, "week", int64(2))

	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if fields[0].Key != "week" || fields[0].Value != int64(2) {
		t.Errorf("fields[0] = %+v, want week=2", fields[0])
	}
}

func TestBatch_LenNil(t *testing.T) {
	var b *Batch
	if b.Len() != 0 {
		t.Errorf("nil Batch Len() = %d, want 0", b.Len())
	}
}
