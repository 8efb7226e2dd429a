package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/edgebird/birdsync/internal/cloud"
	"github.com/edgebird/birdsync/internal/detections"
)

type recordingSink struct {
	got []cloud.Artifact
	err error
}

func (s *recordingSink) PutArtifact(ctx context.Context, a cloud.Artifact) error {
	s.got = append(s.got, a)
	return s.err
}

func writeClip(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write clip: %v", err)
	}
	return path
}

func newObserved(t *testing.T, sink Sink) (*Uploader, *observer.ObservedLogs, string) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	dir := t.TempDir()
	return New(dir, sink, zap.New(core)), logs, dir
}

func TestUpload_Accepted(t *testing.T) {
	sink := &recordingSink{}
	u, logs, dir := newObserved(t, sink)
	path := writeClip(t, dir, "robin.mp3", "clip-bytes")

	res, err := u.Upload(context.Background(), detections.Record{DeviceID: "birdpi", FileName: "robin.mp3", EvtTimestamp: 10})
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if res != Accepted {
		t.Errorf("Upload() = %v, want accepted", res)
	}

	if len(sink.got) != 1 {
		t.Fatalf("sink received %d artifacts, want 1", len(sink.got))
	}
	a := sink.got[0]
	if a.DeviceID != "birdpi" || a.FileName != "robin.mp3" || string(a.Data) != "clip-bytes" {
		t.Errorf("artifact = %+v", a)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("clip should be deleted after upload, stat err = %v", err)
	}
	if logs.FilterMessage("audio uploaded").Len() != 1 {
		t.Errorf("expected an 'audio uploaded' log line, got %v", logs.All())
	}
}

func TestUpload_NotFound(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
	}{
		{"missing file", "gone.mp3"},
		{"empty name", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			u, logs, _ := newObserved(t, sink)

			res, err := u.Upload(context.Background(), detections.Record{FileName: tt.fileName})
			if err != nil {
				t.Fatalf("Upload() = %v, want nil error", err)
			}
			if res != NotFound {
				t.Errorf("Upload() = %v, want not_found", res)
			}
			if len(sink.got) != 0 {
				t.Error("sink should not be called without a file")
			}

			entries := logs.All()
			if len(entries) != 1 || entries[0].Level != zapcore.InfoLevel {
				t.Errorf("want one info 'skipped' line, got %v", entries)
			}
		})
	}
}

func TestUpload_Rejected(t *testing.T) {
	boom := errors.New("503 from endpoint")
	sink := &recordingSink{err: boom}
	u, logs, dir := newObserved(t, sink)
	path := writeClip(t, dir, "robin.mp3", "clip-bytes")

	res, err := u.Upload(context.Background(), detections.Record{FileName: "robin.mp3"})
	if res != Rejected {
		t.Errorf("Upload() = %v, want rejected", res)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Upload() err = %v, want sink error", err)
	}

	// The clip stays for the next cycle.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("clip should remain after rejection: %v", err)
	}
	if string(data) != "clip-bytes" {
		t.Errorf("clip content changed: %q", data)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Errorf("expected one error log line, got %v", logs.All())
	}
}

func TestUpload_UnsafeName(t *testing.T) {
	tests := []string{
		"../etc/passwd",
		"/etc/passwd",
		"a/../../b.mp3",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			sink := &recordingSink{}
			u, _, _ := newObserved(t, sink)

			res, err := u.Upload(context.Background(), detections.Record{FileName: name})
			if res != Rejected {
				t.Errorf("Upload(%q) = %v, want rejected", name, res)
			}
			if !errors.Is(err, ErrUnsafeName) {
				t.Errorf("Upload(%q) err = %v, want ErrUnsafeName", name, err)
			}
			if len(sink.got) != 0 {
				t.Error("sink should not be called for an unsafe name")
			}
		})
	}
}

func TestUpload_Subdirectory(t *testing.T) {
	sink := &recordingSink{}
	u, _, dir := newObserved(t, sink)
	if err := os.MkdirAll(filepath.Join(dir, "2024-06-10"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	writeClip(t, dir, filepath.Join("2024-06-10", "robin.mp3"), "x")

	res, err := u.Upload(context.Background(), detections.Record{FileName: "2024-06-10/robin.mp3"})
	if err != nil || res != Accepted {
		t.Errorf("Upload() = %v, %v; want accepted", res, err)
	}
}

func TestUpload_Directory(t *testing.T) {
	sink := &recordingSink{}
	u, _, dir := newObserved(t, sink)
	if err := os.Mkdir(filepath.Join(dir, "clip.mp3"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	res, err := u.Upload(context.Background(), detections.Record{FileName: "clip.mp3"})
	if res != Rejected || err == nil {
		t.Errorf("Upload() of a directory = %v, %v; want rejected with error", res, err)
	}
}

func TestResult_String(t *testing.T) {
	tests := map[Result]string{
		Accepted:   "accepted",
		NotFound:   "not_found",
		Rejected:   "rejected",
		Result(42): "Result(42)",
	}
	for r, want := range tests {
		if got := r.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
