// Package store archives terminal scans in a local SQLite database.
//
// The archive is write-through: the orchestrator keeps active scans in
// memory and persists them here once they reach COMPLETED or FAILED, which
// makes in-memory eviction safe. Reports are stored as zstd-compressed JSON.
// This is a local archive, not a durability guarantee.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/core"
	"github.com/ThomasHeim11/0xCypherpunkAI/pkg/errors"
)

// Config configures the scan archive.
type Config struct {
	// Path is the SQLite database file.
	// Default: ~/.cypherpunk/scans.db
	Path string

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return &Config{
		Path:        filepath.Join(home, ".cypherpunk", "scans.db"),
		BusyTimeout: 5 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	locator      TEXT NOT NULL,
	findings     INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL,
	report       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
`

// Store is the SQLite-backed scan archive. Safe for concurrent use.
type Store struct {
	config *Config
	db     *sql.DB

	// zstd encoder/decoder pools for reuse
	encoderPool sync.Pool
	decoderPool sync.Pool
}

// ScanSummary is one archive row without the report payload.
type ScanSummary struct {
	ID          string          `json:"id"`
	Status      core.ScanStatus `json:"status"`
	Locator     string          `json:"locator"`
	Findings    int             `json:"findings"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Open opens (creating if needed) the scan archive.
func Open(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = DefaultConfig().Path
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		config.Path, config.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{
		config: config,
		db:     db,
	}
	s.encoderPool = sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil)
			return enc
		},
	}
	s.decoderPool = sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil)
			return dec
		},
	}

	if config.Verbose {
		fmt.Printf("[store] Archive open at %s\n", config.Path)
	}
	return s, nil
}

// SaveScan writes a scan to the archive, replacing any existing row with
// the same id.
func (s *Store) SaveScan(ctx context.Context, scan *core.Scan, locator string) error {
	data, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("marshal scan: %w", err)
	}
	report, err := s.compress(data)
	if err != nil {
		return fmt.Errorf("compress report: %w", err)
	}

	var completed int64
	if !scan.CompletedAt.IsZero() {
		completed = scan.CompletedAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (id, status, locator, findings, created_at, completed_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			findings = excluded.findings,
			completed_at = excluded.completed_at,
			report = excluded.report`,
		scan.ID, string(scan.Status), locator, len(scan.Findings),
		scan.CreatedAt.UnixMilli(), completed, report)
	if err != nil {
		return fmt.Errorf("save scan %s: %w", scan.ID, err)
	}

	if s.config.Verbose {
		fmt.Printf("[store] Archived scan %s (status=%s, report=%d bytes)\n",
			scan.ID, scan.Status, len(report))
	}
	return nil
}

// GetScan reads one scan report back from the archive.
func (s *Store) GetScan(ctx context.Context, scanID string) (*core.Scan, error) {
	var report []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM scans WHERE id = ?`, scanID).Scan(&report)
	if err == sql.ErrNoRows {
		return nil, errors.ErrScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load scan %s: %w", scanID, err)
	}

	data, err := s.decompress(report)
	if err != nil {
		return nil, fmt.Errorf("decompress report %s: %w", scanID, err)
	}

	var scan core.Scan
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, fmt.Errorf("unmarshal report %s: %w", scanID, err)
	}
	return &scan, nil
}

// ListScans returns the most recent archive rows, newest first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]ScanSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, locator, findings, created_at, completed_at
		FROM scans ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var summaries []ScanSummary
	for rows.Next() {
		var sum ScanSummary
		var status string
		var created, completed int64
		if err := rows.Scan(&sum.ID, &status, &sum.Locator, &sum.Findings, &created, &completed); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sum.Status = core.ScanStatus(status)
		sum.CreatedAt = time.UnixMilli(created)
		if completed > 0 {
			sum.CompletedAt = time.UnixMilli(completed)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) compress(data []byte) ([]byte, error) {
	enc := s.encoderPool.Get().(*zstd.Encoder)
	defer s.encoderPool.Put(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Store) decompress(data []byte) ([]byte, error) {
	dec := s.decoderPool.Get().(*zstd.Decoder)
	defer s.decoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("zstd reset: %w", err)
	}
	result, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd read: %w", err)
	}
	return result, nil
}
