package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
	"github.com/joseph-ayodele/exam-importer/internal/repository"
)

func newLedger(t *testing.T) repository.ExtractJobRepository {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := repository.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewExtractJobRepository(db, nil)
}

func TestProcessor_RecordsSuccess(t *testing.T) {
	ledger := newLedger(t)
	chat := &fakeChat{available: true, reply: func(n int, req llm.ChatRequest) (string, error) {
		return `{"questions":[{"content":"q","confidence":0.2}]}`, nil
	}}
	p := NewProcessor(nil, NewExtractor(testConfig(), fakeLoader{pages: 1, text: "some text"}, nil, chat, nil), ledger)

	jobID, res, err := p.Process(context.Background(), constants.ModeText, Input{Bytes: []byte("%PDF"), JobMetadata: map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Questions) != 1 {
		t.Fatalf("questions: %d", len(res.Questions))
	}
	if len(res.Questions[0].TempID) < 8 || res.Questions[0].TempID[:8] != jobID[:8] {
		t.Fatalf("temp ids should be scoped to the job: %q vs %q", res.Questions[0].TempID, jobID)
	}

	row, err := ledger.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Status != constants.JobStatusSucceeded || row.NeedsReview != 1 || row.Metadata["k"] != "v" {
		t.Fatalf("ledger row: %+v", row)
	}
}

func TestProcessor_RecordsFailure(t *testing.T) {
	ledger := newLedger(t)
	p := NewProcessor(nil, NewExtractor(testConfig(), fakeLoader{pages: 1}, nil, &fakeChat{available: false}, nil), ledger)

	jobID, _, err := p.Process(context.Background(), constants.ModeText, Input{Bytes: []byte("%PDF")})
	if !errors.Is(err, common.ErrPrecondition) {
		t.Fatalf("want precondition error, got %v", err)
	}
	row, gerr := ledger.Get(context.Background(), jobID)
	if gerr != nil {
		t.Fatalf("get: %v", gerr)
	}
	if row.Status != constants.JobStatusFailed || row.ErrorMessage == "" {
		t.Fatalf("ledger row: %+v", row)
	}
}

func TestProcessor_WithoutLedger(t *testing.T) {
	chat := &fakeChat{available: true, reply: func(int, llm.ChatRequest) (string, error) { return `{}`, nil }}
	p := NewProcessor(nil, NewExtractor(testConfig(), fakeLoader{pages: 1, text: "t"}, nil, chat, nil), nil)
	if p.HasLedger() {
		t.Fatalf("no ledger configured")
	}
	p.Enqueued(context.Background(), "id", constants.ModeText, Input{})
	if _, err := p.ProcessQueued(context.Background(), "id", constants.ModeText, Input{Bytes: []byte("%PDF")}); err != nil {
		t.Fatalf("process: %v", err)
	}
}

// downLedger fails every write, like a ledger whose database is unreachable.
type downLedger struct {
	repository.ExtractJobRepository
	starts, finishes int
}

func (d *downLedger) Start(context.Context, repository.StartJob) (*repository.ExtractJob, error) {
	d.starts++
	return nil, errors.New("db down")
}

func (d *downLedger) MarkRunning(context.Context, string) error { return errors.New("db down") }

func (d *downLedger) FinishSuccess(context.Context, string, extract.ExtractionResult) error {
	d.finishes++
	return errors.New("db down")
}

func (d *downLedger) FinishFailure(context.Context, string, string) error {
	d.finishes++
	return errors.New("db down")
}

func TestProcessor_LedgerOutageDoesNotFailJob(t *testing.T) {
	ledger := &downLedger{}
	chat := &fakeChat{available: true, reply: func(int, llm.ChatRequest) (string, error) {
		return `{"questions":[{"content":"q","confidence":0.9}]}`, nil
	}}
	p := NewProcessor(nil, NewExtractor(testConfig(), fakeLoader{pages: 1, text: "some text"}, nil, chat, nil), ledger)

	jobID, res, err := p.Process(context.Background(), constants.ModeText, Input{Bytes: []byte("%PDF")})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if jobID == "" || len(res.Questions) != 1 {
		t.Fatalf("job=%q questions=%d", jobID, len(res.Questions))
	}
	if chat.calls() == 0 {
		t.Fatalf("model was never called")
	}

	p.Enqueued(context.Background(), "queued", constants.ModeText, Input{})
	if _, err := p.ProcessQueued(context.Background(), "queued", constants.ModeText, Input{Bytes: []byte("%PDF")}); err != nil {
		t.Fatalf("process queued: %v", err)
	}
	if ledger.starts != 2 || ledger.finishes != 2 {
		t.Fatalf("ledger calls: starts=%d finishes=%d", ledger.starts, ledger.finishes)
	}
}
