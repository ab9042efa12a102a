package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/miwake/internal/models"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStorage persists entries as binary rows in SQLite. Keypoints are
// fixed-layout records compressed with zstd; descriptors and the binary
// image are stored as raw blobs.
type SQLiteStorage struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	o := buildOptions(opts)
	return &SQLiteStorage{db: db, path: dbPath, logger: o.logger, enc: enc, dec: dec}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		keypoints BLOB NOT NULL,
		descriptor_cols INTEGER NOT NULL,
		descriptors BLOB NOT NULL,
		binary_image BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_id ON entries(id);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Exists reports whether any entry has been persisted.
func (s *SQLiteStorage) Exists() bool {
	n, err := s.CountEntries(context.Background())
	return err == nil && n > 0
}

// ReadAll returns every entry in insertion order.
func (s *SQLiteStorage) ReadAll(ctx context.Context) ([]*models.CatalogEntry, error) {
	if !s.Exists() {
		return nil, ErrNotExist
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, keypoints, descriptor_cols, descriptors, binary_image FROM entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.CatalogEntry
	for rows.Next() {
		var (
			seq       int64
			id        string
			kpBlob    []byte
			cols      int
			descBlob  []byte
			imageBlob []byte
		)
		if err := rows.Scan(&seq, &id, &kpBlob, &cols, &descBlob, &imageBlob); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry, err := s.decodeRow(id, kpBlob, cols, descBlob, imageBlob)
		if err != nil {
			s.logger.Warn("skipping malformed cache row", zap.String("path", s.path), zap.Int64("seq", seq), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) decodeRow(id string, kpBlob []byte, cols int, descBlob, imageBlob []byte) (*models.CatalogEntry, error) {
	var kps []models.Keypoint
	if len(kpBlob) > 0 {
		raw, err := s.dec.DecodeAll(kpBlob, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress keypoints: %w", err)
		}
		if kps, err = decodeKeypointsBinary(raw); err != nil {
			return nil, err
		}
	}
	desc, err := models.NewDescriptors(len(kps), cols, descBlob)
	if err != nil {
		return nil, err
	}
	return &models.CatalogEntry{ID: id, Keypoints: kps, Descriptors: desc, BinaryImage: imageBlob}, nil
}

// Append inserts entries in one transaction.
func (s *SQLiteStorage) Append(ctx context.Context, entries []*models.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (id, keypoints, descriptor_cols, descriptors, binary_image) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		cols := 0
		desc := []byte{}
		if e.Descriptors != nil {
			cols = e.Descriptors.Cols
			desc = e.Descriptors.Data
		}
		raw := encodeKeypointsBinary(e.Keypoints)
		kp := s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2+16))
		if _, err := stmt.ExecContext(ctx, e.ID, kp, cols, desc, e.BinaryImage); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// CountEntries returns the number of persisted rows.
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}

// Close closes the database and the codecs.
func (s *SQLiteStorage) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}
