package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/joseph-ayodele/exam-importer/internal/common"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadPDF(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "paper.PDF")
	writeFile(t, pdf, "%PDF-1.4")

	doc, err := ReadPDF(pdf, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(doc.HashHex) != 64 || string(doc.Bytes) != "%PDF-1.4" {
		t.Fatalf("doc: %+v", doc)
	}
	if doc.Metadata()["source_path"] != doc.SourcePath {
		t.Fatalf("metadata: %v", doc.Metadata())
	}

	if _, err := ReadPDF(pdf, 4); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("size limit: %v", err)
	}
	txt := filepath.Join(dir, "notes.txt")
	writeFile(t, txt, "x")
	if _, err := ReadPDF(txt, 0); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("extension: %v", err)
	}
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.pdf"), "b")
	writeFile(t, filepath.Join(root, "a", "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "a", "skip.docx"), "x")
	writeFile(t, filepath.Join(root, ".cache", "c.pdf"), "c")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "h")

	paths, stats, err := ScanDirectory(context.Background(), root, true)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{filepath.Join(root, "a", "a.pdf"), filepath.Join(root, "b.pdf")}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("paths: %v", paths)
	}
	if stats.Matched != 2 {
		t.Fatalf("stats: %+v", stats)
	}

	all, _, err := ScanDirectory(context.Background(), root, false)
	if err != nil || len(all) != 4 {
		t.Fatalf("unfiltered: %v %v", all, err)
	}
}

func TestImporterSkipsRepeats(t *testing.T) {
	dir := t.TempDir()
	one := filepath.Join(dir, "one.pdf")
	two := filepath.Join(dir, "two.pdf")
	writeFile(t, one, "%PDF same")
	writeFile(t, two, "%PDF same")

	var submitted []string
	fail := true
	imp := NewImporter(0, func(_ context.Context, d Document) (string, error) {
		if fail {
			fail = false
			return "", errors.New("queue full")
		}
		submitted = append(submitted, d.SourcePath)
		return "job-" + d.HashHex[:4], nil
	}, nil)

	ctx := context.Background()
	if _, err := imp.Import(ctx, one); err == nil {
		t.Fatal("want submit error")
	}
	id, err := imp.Import(ctx, one)
	if err != nil || id == "" {
		t.Fatalf("retry after failure: %q %v", id, err)
	}
	id, err = imp.Import(ctx, two)
	if err != nil || id != "" {
		t.Fatalf("duplicate content should be skipped: %q %v", id, err)
	}
	if len(submitted) != 1 {
		t.Fatalf("submitted: %v", submitted)
	}
}

func TestWatcherEmitsNewPDFs(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "existing.pdf")
	writeFile(t, existing, "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, SkipHidden: true, Debounce: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	next := func() string {
		t.Helper()
		select {
		case p := <-events:
			return p
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for watcher event")
			return ""
		}
	}

	if got := next(); got != existing {
		t.Fatalf("initial scan: %q", got)
	}

	fresh := filepath.Join(root, "fresh.pdf")
	writeFile(t, filepath.Join(root, "ignored.txt"), "x")
	writeFile(t, fresh, "new")
	if got := next(); got != fresh {
		t.Fatalf("new file: %q", got)
	}

	cancel()
	for range events {
	}
}
