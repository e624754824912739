// Package raster renders PDF pages to images with an external tool (pdftoppm)
// inside a scoped temporary workspace.
package raster

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
)

type Config struct {
	Binary  string // binary name or absolute path; if empty -> "pdftoppm"
	TempDir string // parent for per-job workspaces; empty -> os.TempDir()
}

// Options control a single rasterization.
type Options struct {
	DPI      int    // default 150
	Format   string // "png" | "jpeg", default "png"
	MaxPages int    // 0 = no limit
}

// PageImage is one rendered page. Path points into the job workspace and is
// invalid after Release.
type PageImage struct {
	PageNumber int
	Encoded    string // base64, no data-URL prefix
	MimeType   string
	Path       string
}

// DataURL returns the page as a data: URL.
func (p PageImage) DataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Encoded
}

// Result holds rendered pages. The caller must call Release exactly once on
// every exit path; later calls are no-ops.
type Result struct {
	Pages      []PageImage
	TotalPages int

	workDir string
	once    sync.Once
	logger  *slog.Logger
}

// NewResult wraps pages rendered into workDir. Release removes workDir.
func NewResult(pages []PageImage, totalPages int, workDir string, logger *slog.Logger) *Result {
	if logger == nil {
		logger = slog.Default()
	}
	return &Result{Pages: pages, TotalPages: totalPages, workDir: workDir, logger: logger}
}

// Release removes the workspace and every artifact in it.
func (r *Result) Release() error {
	var err error
	r.once.Do(func() {
		err = os.RemoveAll(r.workDir)
		if err != nil {
			r.logger.Warn("raster.release_failed", "dir", r.workDir, "error", err)
			return
		}
		r.logger.Debug("raster.released", "dir", r.workDir)
	})
	return err
}

type Rasterizer struct {
	cfg      Config
	runner   Runner
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

func NewRasterizer(cfg Config, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "pdftoppm"
	}
	return &Rasterizer{cfg: cfg, runner: execRunner{}, lookPath: exec.LookPath, logger: logger}
}

// WithRunner swaps the command runner; tests use it to avoid poppler.
func (r *Rasterizer) WithRunner(runner Runner) *Rasterizer {
	r.runner = runner
	return r
}

// WithLookPath swaps the binary lookup used by Available.
func (r *Rasterizer) WithLookPath(fn func(string) (string, error)) *Rasterizer {
	r.lookPath = fn
	return r
}

// Available checks that the rasterization tool is installed.
func (r *Rasterizer) Available() error {
	if _, err := r.lookPath(r.cfg.Binary); err != nil {
		return common.NewPreconditionError("rasterizer",
			fmt.Sprintf("%q not found on PATH", r.cfg.Binary),
			"install poppler-utils (apt install poppler-utils / brew install poppler) or set RASTER_BINARY")
	}
	return nil
}

// Rasterize renders every page once with a single tool invocation. On error the
// workspace is already gone; on success its lifetime belongs to the Result.
func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte, opts Options) (res *Result, err error) {
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	format := constants.NormalizeExt(opts.Format)
	if format == "" {
		format = "png"
	}
	mimeType := constants.MimeForFormat(format)
	if mimeType == "" {
		return nil, fmt.Errorf("unsupported raster format %q", opts.Format)
	}

	workDir, err := os.MkdirTemp(r.cfg.TempDir, "examimport-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create raster workspace: %w", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(workDir); rmErr != nil {
				r.logger.Warn("raster.cleanup_failed", "dir", workDir, "error", rmErr)
			}
		}
	}()

	in := filepath.Join(workDir, "input.pdf")
	if err = os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	prefix := filepath.Join(workDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <workdir/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Binary, r.logger, "-r", strconv.Itoa(opts.DPI), "-"+format, in, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", r.cfg.Binary, err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	matches, err := filepath.Glob(prefix + "-*" + fileExt(format))
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	if len(matches) == 0 {
		err = errors.New("no pages rendered")
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return pageNumberFromName(matches[i]) < pageNumberFromName(matches[j])
	})
	total := len(matches)
	if opts.MaxPages > 0 && len(matches) > opts.MaxPages {
		matches = matches[:opts.MaxPages]
	}

	pages := make([]PageImage, 0, len(matches))
	for i, path := range matches {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			err = fmt.Errorf("read page %s: %w", filepath.Base(path), readErr)
			return nil, err
		}
		n := pageNumberFromName(path)
		if n <= 0 {
			n = i + 1
		}
		pages = append(pages, PageImage{
			PageNumber: n,
			Encoded:    base64.StdEncoding.EncodeToString(data),
			MimeType:   mimeType,
			Path:       path,
		})
	}

	r.logger.Info("raster.rendered", "pages", len(pages), "total_pages", total, "dpi", opts.DPI, "format", format)
	return NewResult(pages, total, workDir, r.logger), nil
}

func fileExt(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

// pageNumberFromName parses the 1-based page index pdftoppm embeds in
// "<prefix>-<n>.<ext>", including zero-padded forms. Returns 0 when absent.
func pageNumberFromName(path string) int {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
