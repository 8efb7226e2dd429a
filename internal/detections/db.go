// Package detections reads new BirdNET detections out of the local SQLite
// database.
//
// The database belongs to the inference pipeline. This package opens it
// read-only and only ever issues SELECTs. Rows come back as Records with
// lowercase keys, the Date and Time columns folded into a single unix
// timestamp, and the device identifier attached.
package detections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultLimit caps a batch when the caller passes a non-positive limit.
const DefaultLimit = 100

// ErrNoTable is returned when the database has no detections table, which
// usually means DB_PATH points at the wrong file.
var ErrNoTable = errors.New("detections table not found")

const fetchQuery = `
	SELECT *, CAST(strftime('%s', datetime(Date, Time)) AS INTEGER) AS evt_timestamp
	FROM detections
	WHERE datetime(Date, Time) > datetime(?, 'unixepoch')
	ORDER BY datetime(Date, Time) ASC
	LIMIT ?`

const countQuery = `
	SELECT COUNT(*)
	FROM detections
	WHERE datetime(Date, Time) > datetime(?, 'unixepoch')`

const latestQuery = `
	SELECT CAST(strftime('%s', MAX(datetime(Date, Time))) AS INTEGER)
	FROM detections`

// dropped columns are folded into evt_timestamp.
var dropped = map[string]bool{"date": true, "time": true}

// Store is a read-only handle on the detections database.
type Store struct {
	conn     *sql.DB
	path     string
	deviceID string
}

// Open connects to the database at path without creating or modifying it.
// deviceID is attached to every record the Store returns.
//
// The caller must call Close when done.
func Open(path, deviceID string) (*Store, error) {
	connStr := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)", escapePath(path))
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// One query at a time; a second connection covers status checks.
	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &Store{
		conn:     conn,
		path:     path,
		deviceID: deviceID,
	}, nil
}

// Path returns the database file the Store reads.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Fetch returns up to limit detections whose event time is strictly after
// sinceEpoch, oldest first. An empty batch is not an error.
func (s *Store) Fetch(ctx context.Context, sinceEpoch int64, limit int) (*Batch, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.conn.QueryContext(ctx, fetchQuery, sinceEpoch, limit)
	if err != nil {
		return nil, s.queryError("failed to query detections", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	batch := &Batch{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}

		rec := s.buildRecord(cols, values)
		if rec.EvtTimestamp > batch.MaxEpoch {
			batch.MaxEpoch = rec.EvtTimestamp
		}
		batch.Records = append(batch.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detections: %w", err)
	}

	return batch, nil
}

// CountSince returns how many detections are newer than sinceEpoch.
func (s *Store) CountSince(ctx context.Context, sinceEpoch int64) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, countQuery, sinceEpoch).Scan(&n); err != nil {
		return 0, s.queryError("failed to count detections", err)
	}
	return n, nil
}

// Latest returns the event time of the newest detection. ok is false when
// the table is empty.
func (s *Store) Latest(ctx context.Context) (epoch int64, ok bool, err error) {
	var v sql.NullInt64
	if err := s.conn.QueryRowContext(ctx, latestQuery).Scan(&v); err != nil {
		return 0, false, s.queryError("failed to query latest detection", err)
	}
	return v.Int64, v.Valid, nil
}

func (s *Store) buildRecord(cols []string, values []any) Record {
	rec := Record{
		Fields:   make([]Field, 0, len(cols)),
		DeviceID: s.deviceID,
	}

	for i, col := range cols {
		key := strings.ToLower(col)
		if dropped[key] || key == "device_id" {
			continue
		}
		value := normalize(values[i])

		switch key {
		case "file_name":
			rec.FileName = asString(value)
		case "evt_timestamp":
			rec.EvtTimestamp = asInt(value)
		}
		rec.Fields = setField(rec.Fields, key, value)
	}
	return rec
}

// setField replaces an existing key in place so a later column wins, as it
// would in a map.
func setField(fields []Field, key string, value any) []Field {
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, Field{Key: key, Value: value})
}

// normalize turns driver values into something encoding/json writes the way
// the ingestion endpoint expects.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	default:
		return 0
	}
}

func (s *Store) queryError(msg string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s: %w in %s", msg, ErrNoTable, s.path)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func escapePath(path string) string {
	return strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
}
