// Package cache persists successful per-segment transcriptions so a re-run
// of the same media only repeats the segments that failed.
package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/segment"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when the table layout changes. Old cache files
// must then be deleted.
const schemaVersion = 1

var ErrSchemaMismatch = errors.New("cache schema version mismatch")

// Key identifies one segment's transcription. Bounds are stored in whole
// milliseconds so float noise does not cause misses.
type Key struct {
	Fingerprint string
	StartMs     int64
	EndMs       int64
	OverlapMs   int64
	Transcriber string
	Language    string
}

func KeyFor(fingerprint string, seg segment.Segment, overlap float64, transcriber, language string) Key {
	return Key{
		Fingerprint: fingerprint,
		StartMs:     millis(seg.Start),
		EndMs:       millis(seg.End),
		OverlapMs:   millis(overlap),
		Transcriber: transcriber,
		Language:    language,
	}
}

func millis(s float64) int64 {
	return int64(math.Round(s * 1000))
}

// Store is a SQLite-backed segment result cache. Safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: %s has version %d, want %d (delete the file to rebuild)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Get returns the cached captions for key. ok is false on a miss.
func (s *Store) Get(ctx context.Context, key Key) (captions []caption.Caption, ok bool, err error) {
	var payload string
	err = s.db.QueryRowContext(ctx,
		`SELECT captions_json FROM segment_results
         WHERE fingerprint = ? AND start_ms = ? AND end_ms = ? AND overlap_ms = ?
           AND transcriber = ? AND language = ?`,
		key.Fingerprint, key.StartMs, key.EndMs, key.OverlapMs, key.Transcriber, key.Language,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cached segment: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &captions); err != nil {
		return nil, false, fmt.Errorf("decode cached captions: %w", err)
	}
	return captions, true, nil
}

// Put stores captions for key, replacing any earlier entry.
func (s *Store) Put(ctx context.Context, key Key, captions []caption.Caption) error {
	if captions == nil {
		captions = []caption.Caption{}
	}
	payload, err := json.Marshal(captions)
	if err != nil {
		return fmt.Errorf("encode captions: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO segment_results (
            fingerprint, start_ms, end_ms, overlap_ms, transcriber, language, captions_json, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (fingerprint, start_ms, end_ms, overlap_ms, transcriber, language)
        DO UPDATE SET captions_json = excluded.captions_json, created_at = excluded.created_at`,
		key.Fingerprint, key.StartMs, key.EndMs, key.OverlapMs, key.Transcriber, key.Language,
		string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store segment result: %w", err)
	}
	return nil
}

// Forget removes every entry for a media fingerprint.
func (s *Store) Forget(ctx context.Context, fingerprint string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM segment_results WHERE fingerprint = ?", fingerprint)
	if err != nil {
		return 0, fmt.Errorf("forget cached segments: %w", err)
	}
	return res.RowsAffected()
}

// Count returns how many segments are cached for a fingerprint.
func (s *Store) Count(ctx context.Context, fingerprint string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM segment_results WHERE fingerprint = ?", fingerprint,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cached segments: %w", err)
	}
	return n, nil
}
