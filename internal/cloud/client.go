// Package cloud talks to the ingestion backend: one endpoint takes detection
// metadata as JSON, the other takes the raw audio clip.
//
// Both endpoints signal acceptance with HTTP 200 and nothing else. Any other
// status comes back as a *StatusError that matches ErrRejected.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edgebird/birdsync/internal/detections"
)

// DefaultTimeout bounds a single request when ClientConfig.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Artifact content type expected by the audio endpoint.
const ArtifactContentType = "audio/basic"

// Response bodies are kept for logging, up to this size.
const maxBodyBytes = 4 << 10

var (
	// ErrRejected is matched by every non-200 response.
	ErrRejected = errors.New("rejected by endpoint")
)

// StatusError is returned when an endpoint answers with anything but 200.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.Code, e.Body)
}

// Is makes errors.Is(err, ErrRejected) true for status errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrRejected
}

// Artifact is one audio clip on its way to the backend.
type Artifact struct {
	DeviceID string
	FileName string
	Data     []byte
}

type ClientConfig struct {
	DetectionURL string
	ArtifactURL  string
	Timeout      time.Duration
	UserAgent    string

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client posts detections and artifacts over HTTP.
type Client struct {
	detectionURL string
	artifactURL  string
	userAgent    string
	http         *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		detectionURL: strings.TrimSpace(cfg.DetectionURL),
		artifactURL:  strings.TrimSpace(cfg.ArtifactURL),
		userAgent:    cfg.UserAgent,
		http:         hc,
	}
}

// PostDetection sends one record as a JSON object.
func (c *Client) PostDetection(ctx context.Context, rec detections.Record) error {
	if c.detectionURL == "" {
		return errors.New("detection endpoint is not configured")
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode detection: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.detectionURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "detection endpoint")
}

// PutArtifact sends one audio clip as the raw request body, identified by
// the device_id and file_name headers.
func (c *Client) PutArtifact(ctx context.Context, a Artifact) error {
	if c.artifactURL == "" {
		return errors.New("artifact endpoint is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.artifactURL, bytes.NewReader(a.Data))
	if err != nil {
		return fmt.Errorf("failed to build artifact request: %w", err)
	}
	req.Header.Set("Content-Type", ArtifactContentType)
	// Header names are lowercase with underscores on the wire, so bypass
	// canonicalization.
	req.Header["device_id"] = []string{a.DeviceID}
	req.Header["file_name"] = []string{a.FileName}

	return c.do(req, "artifact endpoint")
}

func (c *Client) do(req *http.Request, endpoint string) error {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode != http.StatusOK {
		return &StatusError{
			Endpoint: endpoint,
			Code:     resp.StatusCode,
			Body:     strings.TrimSpace(string(b)),
		}
	}
	return nil
}
