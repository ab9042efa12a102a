package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"
	"github.com/hyperjump/miwake/internal/models"
	"go.uber.org/zap"
)

// Header is the first row of every CSV cache file.
var Header = []string{"filename", "keypoints", "descriptors", "binary_image"}

var headerLine = strings.Join(Header, ",") + "\n"

// CSVStorage persists entries as rows of a UTF-8 CSV file:
// filename, ';'-joined keypoint records, base64 descriptors, base64 PNG.
type CSVStorage struct {
	path   string
	lock   *flock.Flock
	logger *zap.Logger
}

// NewCSVStorage returns a CSV-backed store at path. Parent directories are created if needed.
func NewCSVStorage(path string, opts ...Option) (*CSVStorage, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	o := buildOptions(opts)
	return &CSVStorage{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: o.logger,
	}, nil
}

// Path returns the CSV file path.
func (s *CSVStorage) Path() string {
	return s.path
}

// Exists reports whether the cache file exists and is non-empty.
func (s *CSVStorage) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// ReadAll parses every row of the cache file. Rows never span lines, so a
// row torn by an interrupted write is skipped without disturbing its
// neighbours.
func (s *CSVStorage) ReadAll(ctx context.Context) ([]*models.CatalogEntry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.ReadString('\n')
	if err == io.EOF {
		// empty, or the first write was cut short inside the header
		if strings.HasPrefix(headerLine, first) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("unexpected cache header %q", first)
	}
	if err != nil {
		return nil, fmt.Errorf("read cache header: %w", err)
	}
	if header, err := parseLine(first); err != nil || !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected cache header %q", strings.TrimRight(first, "\r\n"))
	}

	var entries []*models.CatalogEntry
	for line := 2; ; line++ {
		if line%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("read cache: %w", readErr)
		}
		if text != "" {
			if entry := s.readRow(text, line); entry != nil {
				entries = append(entries, entry)
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	return entries, nil
}

func (s *CSVStorage) readRow(text string, line int) *models.CatalogEntry {
	rec, err := parseLine(text)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		s.logger.Warn("skipping unreadable cache row", zap.String("path", s.path), zap.Int("line", line), zap.Error(err))
		return nil
	}
	entry, err := s.decodeRow(rec, line)
	if err != nil {
		s.logger.Warn("skipping malformed cache row", zap.String("path", s.path), zap.Int("line", line), zap.Error(err))
		return nil
	}
	return entry
}

// parseLine decodes one physical line as a CSV record. A blank line yields io.EOF.
func parseLine(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	return r.Read()
}

func (s *CSVStorage) decodeRow(rec []string, line int) (*models.CatalogEntry, error) {
	if len(rec) != len(Header) {
		return nil, fmt.Errorf("row has %d columns, want %d", len(rec), len(Header))
	}
	if rec[0] == "" {
		return nil, errors.New("row has an empty filename")
	}
	raw, err := base64.StdEncoding.DecodeString(rec[2])
	if err != nil {
		return nil, fmt.Errorf("decode descriptors: %w", err)
	}
	img, err := base64.StdEncoding.DecodeString(rec[3])
	if err != nil {
		return nil, fmt.Errorf("decode binary image: %w", err)
	}
	kps, desc, skipped, err := alignFeatures(decodeKeypointsText(rec[1]), raw)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed keypoints",
			zap.String("id", rec[0]), zap.Int("line", line), zap.Int("skipped", skipped))
	}
	return &models.CatalogEntry{ID: rec[0], Keypoints: kps, Descriptors: desc, BinaryImage: img}, nil
}

// Append encodes entries and writes them with a single write under a file lock.
// The header is written when the file is new, empty or holds only part of a
// header. A torn trailing row is terminated first so it stays a single
// skippable row.
func (s *CSVStorage) Append(ctx context.Context, entries []*models.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open cache for append: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat cache: %w", err)
	}

	var buf bytes.Buffer
	writeHeader := info.Size() == 0
	if !writeHeader {
		if writeHeader, err = s.repairTail(f, info.Size(), &buf); err != nil {
			return err
		}
	}
	w := csv.NewWriter(&buf)
	if writeHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	for _, e := range entries {
		if err := w.Write(encodeRow(e)); err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write cache rows: %w", err)
	}
	return f.Sync()
}

// repairTail fixes what an interrupted write may have left at the end of a
// non-empty file. A partial header is truncated away and reported so the
// caller rewrites it; a missing final newline is queued into buf.
func (s *CSVStorage) repairTail(f *os.File, size int64, buf *bytes.Buffer) (bool, error) {
	if size < int64(len(headerLine)) {
		head := make([]byte, size)
		if _, err := f.ReadAt(head, 0); err != nil && err != io.EOF {
			return false, fmt.Errorf("read cache head: %w", err)
		}
		if strings.HasPrefix(headerLine, string(head)) {
			s.logger.Warn("discarding partial cache header", zap.String("path", s.path), zap.Int64("bytes", size))
			if err := f.Truncate(0); err != nil {
				return false, fmt.Errorf("truncate cache: %w", err)
			}
			return true, nil
		}
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil && err != io.EOF {
		return false, fmt.Errorf("read cache tail: %w", err)
	}
	if last[0] != '\n' {
		s.logger.Warn("terminating torn cache row", zap.String("path", s.path))
		buf.WriteByte('\n')
	}
	return false, nil
}

func encodeRow(e *models.CatalogEntry) []string {
	var desc []byte
	if e.Descriptors != nil {
		desc = e.Descriptors.Data
	}
	return []string{
		e.ID,
		encodeKeypointsText(e.Keypoints),
		base64.StdEncoding.EncodeToString(desc),
		base64.StdEncoding.EncodeToString(e.BinaryImage),
	}
}

// Close releases the lock file handle.
func (s *CSVStorage) Close() error {
	return s.lock.Close()
}
