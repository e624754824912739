package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
)

func TestText_ChunksDedupAndMetadata(t *testing.T) {
	para := strings.Repeat("x", 60)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chat := &fakeChat{available: true, reply: func(n int, req llm.ChatRequest) (string, error) {
		if req.Vision {
			t.Errorf("text units must use the text model")
		}
		// every chunk repeats the same question and lesson, in different case
		if n%2 == 0 {
			return `{"questions":[{"content":"FIND THE  LIMIT","answer":"1"}],"lessons":[{"content":"Limits Intro"}]}`, nil
		}
		return `{"questions":[{"content":"find the limit","answer":"1"}],"lessons":[{"content":"limits intro"}]}`, nil
	}}
	cfg := testConfig()
	cfg.ChunkMaxChars = 130
	e := NewExtractor(cfg, fakeLoader{pages: 2, text: text}, nil, chat, nil)

	meta := map[string]any{"source": "upload-7"}
	res, err := e.RunTextExtraction(context.Background(), Input{Bytes: []byte("%PDF"), JobMetadata: meta})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Stats.UnitsTotal != 2 || chat.calls() != 2 {
		t.Fatalf("want 2 chunks, got units=%d calls=%d", res.Stats.UnitsTotal, chat.calls())
	}
	if len(res.Questions) != 1 || len(res.Lessons) != 1 {
		t.Fatalf("dedup: got %d questions %d lessons", len(res.Questions), len(res.Lessons))
	}
	if res.Questions[0].Content != "find the limit" {
		t.Fatalf("first occurrence must win, got %q", res.Questions[0].Content)
	}
	if res.Stats.DuplicateRecords != 2 || res.Stats.RawQuestions != 2 || res.Stats.RawLessons != 2 {
		t.Fatalf("stats: %+v", res.Stats)
	}
	if res.Stats.Mode != constants.ModeText || res.Stats.PageCount != 2 {
		t.Fatalf("stats: %+v", res.Stats)
	}
	if res.JobMetadata["source"] != "upload-7" {
		t.Fatalf("metadata: %v", res.JobMetadata)
	}
}

func TestText_UnitFailuresAbsorbed(t *testing.T) {
	text := "first section\n\nsecond section\n\nthird section"
	chat := &fakeChat{available: true, reply: func(n int, req llm.ChatRequest) (string, error) {
		switch n {
		case 1:
			return "", common.NewUnitServiceError(500, "boom", nil)
		case 2:
			return "not json at all", nil
		default:
			return `{"questions":[{"content":"survivor","topic":"Probability"}]}`, nil
		}
	}}
	cfg := testConfig()
	cfg.ChunkMaxChars = 15
	e := NewExtractor(cfg, fakeLoader{pages: 1, text: text}, nil, chat, nil)

	res, err := e.RunTextExtraction(context.Background(), Input{Bytes: []byte("%PDF")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Questions) != 1 || res.Questions[0].Topic != constants.Probability {
		t.Fatalf("questions: %+v", res.Questions)
	}
	if res.Stats.UnitsFailed != 1 || res.Stats.ParseFailures != 1 || res.Stats.UnitsSucceeded != 2 {
		t.Fatalf("stats: %+v", res.Stats)
	}
}

func TestText_ChunkOrder(t *testing.T) {
	text := "alpha\n\nbeta\n\ngamma"
	chat := &fakeChat{available: true, reply: func(n int, req llm.ChatRequest) (string, error) {
		return `{}`, nil
	}}
	cfg := testConfig()
	cfg.ChunkMaxChars = 5
	e := NewExtractor(cfg, fakeLoader{pages: 1, text: text}, nil, chat, nil)

	if _, err := e.RunTextExtraction(context.Background(), Input{Bytes: []byte("%PDF")}); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(chat.requests) != len(want) {
		t.Fatalf("calls: want=%d got=%d", len(want), len(chat.requests))
	}
	for i, w := range want {
		if !strings.HasSuffix(userText(chat.requests[i]), w) {
			t.Fatalf("unit %d: want chunk %q, got %q", i, w, userText(chat.requests[i]))
		}
	}
}

func TestText_Preconditions(t *testing.T) {
	cases := []struct {
		name   string
		cfg    func(*Config)
		loader fakeLoader
		chat   *fakeChat
		input  []byte
		check  string
	}{
		{name: "empty input", loader: fakeLoader{pages: 1}, chat: &fakeChat{available: true}, input: nil, check: "input"},
		{name: "too large", cfg: func(c *Config) { c.MaxBytes = 3 }, loader: fakeLoader{pages: 1}, chat: &fakeChat{available: true}, input: []byte("%PDF-1.7"), check: "size"},
		{name: "too many pages", cfg: func(c *Config) { c.MaxTextPages = 2 }, loader: fakeLoader{pages: 3}, chat: &fakeChat{available: true}, input: []byte("%PDF"), check: "pages"},
		{name: "unreadable pdf", loader: fakeLoader{err: errors.New("malformed xref")}, chat: &fakeChat{available: true}, input: []byte("junk"), check: "document"},
		{name: "service down", loader: fakeLoader{pages: 1}, chat: &fakeChat{available: false}, input: []byte("%PDF"), check: "inference"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			e := NewExtractor(cfg, tc.loader, nil, tc.chat, nil)
			_, err := e.RunTextExtraction(context.Background(), Input{Bytes: tc.input})
			requirePrecondition(t, err, tc.check)
			if !common.IsPrecondition(err) {
				t.Fatalf("IsPrecondition should hold")
			}
			if tc.chat.calls() != 0 {
				t.Fatalf("no model calls expected")
			}
		})
	}
}

func TestText_NoTextLayer(t *testing.T) {
	chat := &fakeChat{available: true}
	e := NewExtractor(testConfig(), fakeLoader{pages: 4, text: "  \n\n "}, nil, chat, nil)
	res, err := e.RunTextExtraction(context.Background(), Input{Bytes: []byte("%PDF")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Questions) != 0 || res.Stats.UnitsTotal != 0 || chat.calls() != 0 {
		t.Fatalf("want empty result without model calls, got %+v", res.Stats)
	}
}

func TestRun_UnknownMode(t *testing.T) {
	e := NewExtractor(testConfig(), fakeLoader{}, nil, &fakeChat{}, nil)
	_, err := e.Run(context.Background(), constants.Mode("audio"), Input{})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}
