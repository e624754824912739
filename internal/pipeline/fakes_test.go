package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/document"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
	"github.com/joseph-ayodele/exam-importer/internal/raster"
)

type fakeLoader struct {
	pages int
	text  string
	err   error
}

func (f fakeLoader) PageCount([]byte) (int, error) { return f.pages, f.err }

func (f fakeLoader) Load(_ context.Context, data []byte) (document.RawDocument, error) {
	return document.RawDocument{Bytes: data, PageCount: f.pages, Text: f.text}, f.err
}

type fakeRasterizer struct {
	availErr error
	pages    int
	workDir  string
	calls    int
}

func (f *fakeRasterizer) Available() error { return f.availErr }

func (f *fakeRasterizer) Rasterize(_ context.Context, _ []byte, opts raster.Options) (*raster.Result, error) {
	f.calls++
	if err := os.MkdirAll(f.workDir, 0o755); err != nil {
		return nil, err
	}
	var pages []raster.PageImage
	for i := 1; i <= f.pages; i++ {
		pages = append(pages, raster.PageImage{
			PageNumber: i,
			Encoded:    "UEFHRQ" + string(rune('0'+i)),
			MimeType:   "image/png",
			Path:       filepath.Join(f.workDir, "page.png"),
		})
	}
	return raster.NewResult(pages, f.pages, f.workDir, nil), nil
}

// fakeChat answers each call with reply(n, req) where n counts calls from 1.
type fakeChat struct {
	mu        sync.Mutex
	available bool
	vision    bool
	reply     func(n int, req llm.ChatRequest) (string, error)
	requests  []llm.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.reply(n, req)
}

func (f *fakeChat) IsAvailable(context.Context) bool         { return f.available }
func (f *fakeChat) HasVisionCapability(context.Context) bool { return f.vision }

func (f *fakeChat) Info() llm.ProviderInfo {
	return llm.ProviderInfo{Provider: "fake", BaseURL: "http://fake", TextModel: "t", VisionModel: "v"}
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func userText(req llm.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

var errTimeout = common.NewUnitTimeoutError(time.Second, context.DeadlineExceeded)

func testConfig() Config {
	return Config{
		MaxBytes:       1 << 20,
		MaxTextPages:   200,
		MaxVisionPages: 40,
		ChunkMaxChars:  12000,
		TextTimeout:    time.Second,
		VisionTimeout:  time.Second,
	}
}

func requirePrecondition(t *testing.T, err error, check string) {
	t.Helper()
	var pe *common.PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("want PreconditionError(%s), got %T %v", check, err, err)
	}
	if pe.Check != check {
		t.Fatalf("check: want=%s got=%s (%v)", check, pe.Check, err)
	}
	if !strings.Contains(err.Error(), pe.Message) {
		t.Fatalf("error text should carry the message: %v", err)
	}
}
