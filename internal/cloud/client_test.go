package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgebird/birdsync/internal/detections"
)

func testRecord() detections.Record {
	return detections.Record{
		Fields: []detections.Field{
			{Key: "com_name", Value: "European Robin"},
			{Key: "confidence", Value: 0.85},
			{Key: "file_name", Value: "robin.mp3"},
			{Key: "evt_timestamp", Value: int64(1718000000)},
		},
		DeviceID:     "birdpi",
		FileName:     "robin.mp3",
		EvtTimestamp: 1718000000,
	}
}

func TestPostDetection_Accepted(t *testing.T) {
	var got map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{DetectionURL: srv.URL, UserAgent: "birdsync/test"})
	if err := c.PostDetection(context.Background(), testRecord()); err != nil {
		t.Fatalf("PostDetection() failed: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if got["com_name"] != "European Robin" || got["device_id"] != "birdpi" {
		t.Errorf("unexpected payload: %v", got)
	}
	if got["evt_timestamp"] != float64(1718000000) {
		t.Errorf("evt_timestamp = %v, want 1718000000", got["evt_timestamp"])
	}
}

func TestPostDetection_StatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"created is not accepted", http.StatusCreated, true},
		{"no content is not accepted", http.StatusNoContent, true},
		{"bad request", http.StatusBadRequest, true},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = io.WriteString(w, "  detail  ")
			}))
			defer srv.Close()

			err := NewClient(ClientConfig{DetectionURL: srv.URL}).PostDetection(context.Background(), testRecord())
			if !tt.wantErr {
				if err != nil {
					t.Errorf("PostDetection() = %v, want nil", err)
				}
				return
			}

			if !errors.Is(err, ErrRejected) {
				t.Fatalf("PostDetection() = %v, want ErrRejected", err)
			}
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not a *StatusError", err)
			}
			if se.Code != tt.code {
				t.Errorf("Code = %d, want %d", se.Code, tt.code)
			}
			if se.Body != "detail" {
				t.Errorf("Body = %q, want detail", se.Body)
			}
		})
	}
}

func TestPostDetection_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(ClientConfig{DetectionURL: url}).PostDetection(context.Background(), testRecord())
	if err == nil {
		t.Fatal("PostDetection() against a closed server should fail")
	}
	if errors.Is(err, ErrRejected) {
		t.Error("transport failure should not look like a status rejection")
	}
}

func TestPostDetection_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(ClientConfig{DetectionURL: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	if err := c.PostDetection(context.Background(), testRecord()); err == nil {
		t.Fatal("PostDetection() should time out")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestPostDetection_NotConfigured(t *testing.T) {
	if err := NewClient(ClientConfig{}).PostDetection(context.Background(), testRecord()); err == nil {
		t.Error("PostDetection() without a URL should fail")
	}
}

func TestPutArtifact(t *testing.T) {
	var (
		body        string
		deviceID    string
		fileName    string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		deviceID = r.Header.Get("device_id")
		fileName = r.Header.Get("file_name")
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{ArtifactURL: srv.URL})
	err := c.PutArtifact(context.Background(), Artifact{DeviceID: "birdpi", FileName: "robin.mp3", Data: []byte("RIFF....")})
	if err != nil {
		t.Fatalf("PutArtifact() failed: %v", err)
	}

	if body != "RIFF...." {
		t.Errorf("body = %q, want RIFF....", body)
	}
	if deviceID != "birdpi" {
		t.Errorf("device_id header = %q, want birdpi", deviceID)
	}
	if fileName != "robin.mp3" {
		t.Errorf("file_name header = %q, want robin.mp3", fileName)
	}
	if contentType != ArtifactContentType {
		t.Errorf("Content-Type = %q, want %q", contentType, ArtifactContentType)
	}
}

func TestPutArtifact_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	err := NewClient(ClientConfig{ArtifactURL: srv.URL}).PutArtifact(context.Background(), Artifact{FileName: "x.mp3"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("PutArtifact() = %v, want ErrRejected", err)
	}
	if !strings.Contains(err.Error(), "413") {
		t.Errorf("error %q should mention the status code", err)
	}
}
