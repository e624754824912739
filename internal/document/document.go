// Package document turns uploaded PDF bytes into normalized text units for the
// text extraction path.
package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// RawDocument is the read-only view of one upload. Callers must not mutate Bytes
// or PageTexts after Load returns.
type RawDocument struct {
	Bytes     []byte
	PageCount int
	Text      string
	PageTexts []string
}

// Loader is the byte-level PDF text extractor the pipeline depends on.
type Loader interface {
	PageCount(data []byte) (int, error)
	Load(ctx context.Context, data []byte) (RawDocument, error)
}

// PDFLoader extracts text with github.com/ledongthuc/pdf.
type PDFLoader struct {
	logger *slog.Logger
}

func NewPDFLoader(logger *slog.Logger) *PDFLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFLoader{logger: logger}
}

func (l *PDFLoader) PageCount(data []byte) (int, error) {
	r, err := openReader(data)
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

// Load reads every page's plain text. Pages that fail to decode contribute an
// empty string so page ordinals stay aligned with the source.
func (l *PDFLoader) Load(ctx context.Context, data []byte) (RawDocument, error) {
	r, err := openReader(data)
	if err != nil {
		return RawDocument{}, err
	}

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return RawDocument{}, err
		}
		txt, err := pageText(r, i)
		if err != nil {
			l.logger.Warn("document.page_text_failed", "page", i, "error", err)
			txt = ""
		}
		pages = append(pages, txt)
	}

	nonEmpty := make([]string, 0, len(pages))
	for _, p := range pages {
		if s := strings.TrimSpace(p); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}

	l.logger.Debug("document.loaded", "pages", n, "bytes", len(data))
	return RawDocument{
		Bytes:     data,
		PageCount: n,
		Text:      strings.Join(nonEmpty, "\n\n"),
		PageTexts: pages,
	}, nil
}

func openReader(data []byte) (*pdf.Reader, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf payload")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return r, nil
}

// pageText converts parser panics on malformed content streams into errors.
func pageText(r *pdf.Reader, num int) (txt string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: malformed content: %v", num, rec)
		}
	}()
	p := r.Page(num)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
