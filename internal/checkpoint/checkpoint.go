// Package checkpoint persists the sync watermark: the event time of the last
// detection that was fully uploaded.
//
// The watermark lives in a small JSON file, {"epoch": "1718000000"}, next to
// the audio files waiting for upload. Load never fails. A missing file, a
// corrupted file and a watermark from the future all fall back to a default
// lookback window.
//
// The store assumes a single writer. Two processes pointed at the same file
// will race.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FileName is the checkpoint's name inside the upload directory.
const FileName = "last_upload_checkpoint.json"

var (
	// ErrMissingEpoch is returned when the checkpoint file parses as JSON but
	// carries no epoch field.
	ErrMissingEpoch = errors.New("checkpoint has no epoch")

	// ErrInvalidEpoch is returned when the epoch field is neither an integer
	// nor a numeric string.
	ErrInvalidEpoch = errors.New("checkpoint epoch is not numeric")
)

type file struct {
	Epoch json.RawMessage `json:"epoch"`
}

// Store reads and writes the checkpoint file.
type Store struct {
	path      string
	resetDays int
	logger    *zap.Logger

	// now is swapped out by tests.
	now func() time.Time
}

// NewStore returns a Store for the checkpoint inside dir. resetDays is the
// lookback window used whenever no trustworthy checkpoint exists.
func NewStore(dir string, resetDays int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:      filepath.Join(dir, FileName),
		resetDays: resetDays,
		logger:    logger,
		now:       time.Now,
	}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Default returns now minus the reset window, in unix seconds.
func (s *Store) Default() int64 {
	return s.now().AddDate(0, 0, -s.resetDays).Unix()
}

// Load returns the watermark to resume from.
func (s *Store) Load() int64 {
	fallback := s.Default()

	epoch, ok, err := s.Peek()
	switch {
	case err != nil:
		s.logger.Warn("corrupted checkpoint, resetting file",
			zap.String("path", s.path),
			zap.Int64("epoch", fallback),
			zap.Error(err))
		if werr := s.Save(fallback); werr != nil {
			s.logger.Error("failed to reset checkpoint", zap.String("path", s.path), zap.Error(werr))
		}
		return fallback

	case !ok:
		s.logger.Info("no checkpoint found, using default lookback",
			zap.String("path", s.path),
			zap.Int("reset_days", s.resetDays),
			zap.Int64("epoch", fallback))
		return fallback

	case epoch > s.now().Unix():
		s.logger.Warn("checkpoint epoch is in the future, using default lookback",
			zap.Int64("checkpoint", epoch),
			zap.Int64("now", s.now().Unix()),
			zap.Int64("epoch", fallback))
		return fallback
	}

	return epoch
}

// Peek reads the checkpoint without any recovery. ok is false when the file
// does not exist.
func (s *Store) Peek() (epoch int64, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	epoch, err = parse(data)
	if err != nil {
		return 0, false, err
	}
	return epoch, true, nil
}

// Save overwrites the checkpoint with epoch. The write goes to a temporary
// file that is renamed over the old checkpoint, so readers see either the
// old or the new value.
func (s *Store) Save(epoch int64) error {
	data, err := json.Marshal(map[string]string{"epoch": strconv.FormatInt(epoch, 10)})
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	// CreateTemp creates 0600 files.
	_ = os.Chmod(tmpPath, 0644)
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint. Clearing a missing checkpoint is not an
// error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}

// parse accepts {"epoch": "123"}, {"epoch": 123} and {"epoch": 123.4}.
// Earlier writers used all three. Values too large for int64 come back as
// math.MaxInt64; values too small are invalid.
func parse(data []byte) (int64, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	raw := strings.TrimSpace(string(f.Epoch))
	if raw == "" || raw == "null" {
		return 0, ErrMissingEpoch
	}

	var str string
	if err := json.Unmarshal(f.Epoch, &str); err == nil {
		raw = strings.TrimSpace(str)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(raw, "-") {
		return math.MaxInt64, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, -1) || v < math.MinInt64 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidEpoch, raw)
	}
	// Epochs past int64 are clamped so they read as far in the future.
	if math.IsInf(v, 1) || v >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(v), nil
}
