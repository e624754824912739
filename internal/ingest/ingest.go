// Package ingest reads exam PDFs from the local filesystem for the hot-folder
// importer.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/exam-importer/internal/common"
)

// Document is one PDF read from disk.
type Document struct {
	SourcePath string
	Bytes      []byte
	HashHex    string
	ModTime    time.Time
}

// Metadata is the job metadata attached to jobs created from d.
func (d Document) Metadata() map[string]any {
	return map[string]any{
		"source_path": d.SourcePath,
		"sha256":      d.HashHex,
	}
}

type DirStats struct {
	Scanned int
	Matched int
	Failed  int
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// ReadPDF loads path, rejecting non-PDF names and files over maxBytes (0 = no limit).
func ReadPDF(path string, maxBytes int64) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, err
	}
	if !IsPDF(abs) {
		return Document{}, common.NewAppError("UNSUPPORTED_FILE", fmt.Sprintf("not a PDF: %s", abs), common.ErrInvalidInput)
	}
	f, err := os.Open(abs)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Document{}, err
	}
	if maxBytes > 0 && st.Size() > maxBytes {
		return Document{}, common.NewAppError("FILE_TOO_LARGE", fmt.Sprintf("%s is %d bytes, limit %d", abs, st.Size(), maxBytes), common.ErrInvalidInput)
	}

	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(f, h))
	if err != nil {
		return Document{}, err
	}
	return Document{
		SourcePath: abs,
		Bytes:      data,
		HashHex:    hex.EncodeToString(h.Sum(nil)),
		ModTime:    st.ModTime().UTC(),
	}, nil
}

// ScanDirectory walks root and returns the PDF paths under it in lexical order.
func ScanDirectory(ctx context.Context, root string, skipHidden bool) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var paths []string
	var stats DirStats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsPDF(path) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return paths, stats, fmt.Errorf("walk: %w", err)
	}
	return paths, stats, nil
}

// Seen remembers content hashes so the same PDF is only imported once per process.
type Seen struct {
	mu     sync.Mutex
	hashes map[string]string
}

func NewSeen() *Seen {
	return &Seen{hashes: make(map[string]string)}
}

// Mark records hash and returns the path it was first seen at, if any.
func (s *Seen) Mark(hash, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if first, ok := s.hashes[hash]; ok {
		return first, true
	}
	s.hashes[hash] = path
	return "", false
}

// Forget drops hash so a later write of the same content is retried.
func (s *Seen) Forget(hash string) {
	s.mu.Lock()
	delete(s.hashes, hash)
	s.mu.Unlock()
}

// Submitter accepts one document for extraction.
type Submitter func(ctx context.Context, doc Document) (jobID string, err error)

// Importer turns paths into submitted jobs, skipping repeats.
type Importer struct {
	MaxBytes int64
	Submit   Submitter
	seen     *Seen
	logger   *slog.Logger
}

func NewImporter(maxBytes int64, submit Submitter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{MaxBytes: maxBytes, Submit: submit, seen: NewSeen(), logger: logger}
}

// Import reads path and submits it. A repeat of already-imported content
// returns ("", nil).
func (i *Importer) Import(ctx context.Context, path string) (string, error) {
	doc, err := ReadPDF(path, i.MaxBytes)
	if err != nil {
		i.logger.Warn("ingest.read_failed", "path", path, "err", err)
		return "", err
	}
	if first, dup := i.seen.Mark(doc.HashHex, doc.SourcePath); dup {
		i.logger.Info("ingest.duplicate", "path", doc.SourcePath, "first_path", first, "sha256", doc.HashHex)
		return "", nil
	}
	jobID, err := i.Submit(ctx, doc)
	if err != nil {
		i.seen.Forget(doc.HashHex)
		i.logger.Error("ingest.submit_failed", "path", doc.SourcePath, "err", err)
		return "", err
	}
	i.logger.Info("ingest.submitted", "path", doc.SourcePath, "job_id", jobID, "bytes", len(doc.Bytes))
	return jobID, nil
}

// Run imports every path from paths until it closes or ctx ends.
func (i *Importer) Run(ctx context.Context, paths <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-paths:
			if !ok {
				return
			}
			_, _ = i.Import(ctx, p)
		}
	}
}
