package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
)

func TestVision_RasterizerMissingFailsBeforeWork(t *testing.T) {
	rz := &fakeRasterizer{
		availErr: common.NewPreconditionError("rasterizer", "pdftoppm not found", "install poppler-utils"),
		workDir:  filepath.Join(t.TempDir(), "ws"),
	}
	chat := &fakeChat{available: true, vision: true}
	e := NewExtractor(testConfig(), fakeLoader{pages: 2}, rz, chat, nil)

	_, err := e.RunVisionExtraction(context.Background(), Input{Bytes: []byte("%PDF")})
	requirePrecondition(t, err, "rasterizer")
	if rz.calls != 0 {
		t.Fatalf("rasterize must not run, calls=%d", rz.calls)
	}
	if _, statErr := os.Stat(rz.workDir); !os.IsNotExist(statErr) {
		t.Fatalf("no workspace should exist, stat err=%v", statErr)
	}
	if chat.calls() != 0 {
		t.Fatalf("no model calls expected, got %d", chat.calls())
	}
}

func TestVision_VisionModelMissing(t *testing.T) {
	rz := &fakeRasterizer{workDir: filepath.Join(t.TempDir(), "ws")}
	chat := &fakeChat{available: true, vision: false}
	e := NewExtractor(testConfig(), fakeLoader{pages: 1}, rz, chat, nil)

	_, err := e.RunVisionExtraction(context.Background(), Input{Bytes: []byte("%PDF")})
	requirePrecondition(t, err, "vision_model")
	if rz.calls != 0 {
		t.Fatalf("rasterize must not run")
	}
}

func TestVision_PageLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVisionPages = 3
	e := NewExtractor(cfg, fakeLoader{pages: 4}, &fakeRasterizer{workDir: t.TempDir()}, &fakeChat{available: true, vision: true}, nil)

	_, err := e.RunVisionExtraction(context.Background(), Input{Bytes: []byte("%PDF")})
	requirePrecondition(t, err, "pages")
}

func TestVision_MergeAcrossPages(t *testing.T) {
	rz := &fakeRasterizer{pages: 3, workDir: filepath.Join(t.TempDir(), "ws")}
	chat := &fakeChat{available: true, vision: true, reply: func(n int, req llm.ChatRequest) (string, error) {
		switch {
		case strings.Contains(userText(req), "Page 1 of"):
			return `{"questions":[{"questionNum":"Q5(i)","content":"part one","difficulty":3,"confidence":0.9}]}`, nil
		case strings.Contains(userText(req), "Page 2 of"):
			return "```json\n" + `{"questions":[{"questionNum":"Q5(ii)","content":"part two","hasDiagram":true,"diagramDescription":"a parabola","difficulty":5}],
			"lessons":[{"title":"Parabolas","content":"A parabola is...","contentType":"summary"}]}` + "\n```", nil
		default:
			return `{"questions":[{"questionNum":"2","content":"earlier question","confidence":0.4}]}`, nil
		}
	}}
	e := NewExtractor(testConfig(), fakeLoader{pages: 3}, rz, chat, nil)

	meta := map[string]any{"paper": "2023 P1"}
	res, err := e.RunVisionExtraction(context.Background(), Input{Bytes: []byte("%PDF"), JobMetadata: meta})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(res.Questions) != 2 {
		t.Fatalf("questions: want=2 got=%d %+v", len(res.Questions), res.Questions)
	}
	if res.Questions[0].QuestionNum != "Q2" || res.Questions[1].QuestionNum != "Q5" {
		t.Fatalf("order: got %q, %q", res.Questions[0].QuestionNum, res.Questions[1].QuestionNum)
	}
	q5 := res.Questions[1]
	if q5.Content != "part one\n\npart two" {
		t.Fatalf("content: got=%q", q5.Content)
	}
	if q5.Difficulty != 3 || q5.Confidence != 0.9 {
		t.Fatalf("first fragment scalars must win: difficulty=%d confidence=%v", q5.Difficulty, q5.Confidence)
	}
	if q5.DiagramDescription != "a parabola" || !strings.HasPrefix(q5.DiagramImage, "data:image/png;base64,") {
		t.Fatalf("diagram not carried: %q %q", q5.DiagramDescription, q5.DiagramImage)
	}
	if !res.Questions[0].NeedsReview {
		t.Fatalf("Q2 with confidence 0.4 needs review")
	}
	if len(res.Lessons) != 1 || res.Lessons[0].ContentType != constants.Summary {
		t.Fatalf("lessons: %+v", res.Lessons)
	}
	if res.JobMetadata["paper"] != "2023 P1" {
		t.Fatalf("job metadata not passed through: %v", res.JobMetadata)
	}
	if res.Stats.MergedQuestions != 1 || res.Stats.UnitsTotal != 3 || res.Stats.UnitsSucceeded != 3 {
		t.Fatalf("stats: %+v", res.Stats)
	}

	for _, req := range chat.requests {
		if !req.Vision || len(req.Messages[1].Images) != 1 {
			t.Fatalf("vision requests must carry one image: %+v", req)
		}
	}
	if _, statErr := os.Stat(rz.workDir); !os.IsNotExist(statErr) {
		t.Fatalf("workspace should be released, stat err=%v", statErr)
	}
}

func TestVision_UnitFailureIsolated(t *testing.T) {
	rz := &fakeRasterizer{pages: 3, workDir: filepath.Join(t.TempDir(), "ws")}
	chat := &fakeChat{available: true, vision: true, reply: func(n int, req llm.ChatRequest) (string, error) {
		switch n {
		case 1:
			return `{"questions":[{"questionNum":"1","content":"one"}]}`, nil
		case 2:
			return "", errTimeout
		default:
			return "the page is blank", nil
		}
	}}
	e := NewExtractor(testConfig(), fakeLoader{pages: 3}, rz, chat, nil)

	res, err := e.RunVisionExtraction(context.Background(), Input{Bytes: []byte("%PDF")})
	if err != nil {
		t.Fatalf("unit failures must not fail the job: %v", err)
	}
	if chat.calls() != 3 {
		t.Fatalf("all pages must be attempted, calls=%d", chat.calls())
	}
	if len(res.Questions) != 1 {
		t.Fatalf("questions: want=1 got=%d", len(res.Questions))
	}
	body, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"lessons":[]`) {
		t.Fatalf("lessons should serialize as an empty list: %s", body)
	}
	st := res.Stats
	if st.UnitsFailed != 1 || st.UnitsSucceeded != 2 || st.ParseFailures != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if _, statErr := os.Stat(rz.workDir); !os.IsNotExist(statErr) {
		t.Fatalf("workspace should be released")
	}
}

func TestVision_CancelledJobReleasesWorkspace(t *testing.T) {
	rz := &fakeRasterizer{pages: 2, workDir: filepath.Join(t.TempDir(), "ws")}
	ctx, cancel := context.WithCancel(context.Background())
	chat := &fakeChat{available: true, vision: true, reply: func(n int, req llm.ChatRequest) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	e := NewExtractor(testConfig(), fakeLoader{pages: 2}, rz, chat, nil)

	_, err := e.RunVisionExtraction(ctx, Input{Bytes: []byte("%PDF")})
	if err == nil {
		t.Fatalf("want cancellation error")
	}
	if _, statErr := os.Stat(rz.workDir); !os.IsNotExist(statErr) {
		t.Fatalf("workspace should be released on failure")
	}
}
