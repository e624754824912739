package server

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/exam-importer/internal/async"
	"github.com/joseph-ayodele/exam-importer/internal/document"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
	"github.com/joseph-ayodele/exam-importer/internal/pipeline"
	"github.com/joseph-ayodele/exam-importer/internal/repository"
)

type stubLoader struct{}

func (stubLoader) PageCount([]byte) (int, error) { return 1, nil }

func (stubLoader) Load(_ context.Context, data []byte) (document.RawDocument, error) {
	return document.RawDocument{Bytes: data, PageCount: 1, Text: "Question 1. Differentiate x^2."}, nil
}

type stubChat struct{ available bool }

func (c stubChat) Chat(context.Context, llm.ChatRequest) (string, error) {
	return `{"questions":[{"questionNum":"1","content":"Differentiate x^2.","answer":"2x","confidence":0.9}]}`, nil
}
func (c stubChat) IsAvailable(context.Context) bool         { return c.available }
func (c stubChat) HasVisionCapability(context.Context) bool { return false }
func (c stubChat) Info() llm.ProviderInfo                   { return llm.ProviderInfo{Provider: "stub"} }

type harness struct {
	client *ExtractionClient
	health grpc_health_v1.HealthClient
}

func newHarness(t *testing.T, available bool) harness {
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
	ledger := repository.NewExtractJobRepository(db, nil)

	cfg := pipeline.Config{MaxBytes: 1 << 20, MaxTextPages: 10, MaxVisionPages: 10, TextTimeout: time.Second, VisionTimeout: time.Second}
	proc := pipeline.NewProcessor(nil, pipeline.NewExtractor(cfg, stubLoader{}, nil, stubChat{available: available}, nil), ledger)
	queue := async.NewProcessorQueue(proc, nil)
	t.Cleanup(func() { queue.Shutdown(context.Background()) })

	gs, _ := NewGRPCServer(NewExtractionService(proc, queue, nil, nil), nil)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return harness{client: NewExtractionClient(conn), health: grpc_health_v1.NewHealthClient(conn)}
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

var pdfB64 = base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test"))

func TestRunTextExtraction(t *testing.T) {
	h := newHarness(t, true)
	out, err := h.client.RunTextExtraction(context.Background(), request(t, map[string]any{
		"pdf_base64": pdfB64,
		"metadata":   map[string]any{"paper": "2019-P1"},
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	qs := out.Fields["questions"].GetListValue().GetValues()
	if len(qs) != 1 {
		t.Fatalf("questions: %v", out)
	}
	q := qs[0].GetStructValue().Fields
	if q["answer"].GetStringValue() != "2x" || q["questionNum"].GetStringValue() != "1" {
		t.Fatalf("question: %v", q)
	}
	if got := out.Fields["jobMetadata"].GetStructValue().Fields["paper"].GetStringValue(); got != "2019-P1" {
		t.Fatalf("metadata passthrough: %q", got)
	}
	if out.Fields["job_id"].GetStringValue() == "" {
		t.Fatal("job_id missing")
	}
}

func TestRunTextExtraction_Errors(t *testing.T) {
	cases := []struct {
		name      string
		available bool
		fields    map[string]any
		want      codes.Code
	}{
		{"missing pdf", true, map[string]any{}, codes.InvalidArgument},
		{"bad base64", true, map[string]any{"pdf_base64": "%%%"}, codes.InvalidArgument},
		{"service down", false, map[string]any{"pdf_base64": pdfB64}, codes.FailedPrecondition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.available)
			_, err := h.client.RunTextExtraction(context.Background(), request(t, tc.fields))
			if status.Code(err) != tc.want {
				t.Fatalf("want %v got %v (%v)", tc.want, status.Code(err), err)
			}
		})
	}
}

func TestSubmitGetExport(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	sub, err := h.client.SubmitExtraction(ctx, request(t, map[string]any{"mode": "text", "pdf_base64": pdfB64}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	jobID := sub.Fields["job_id"].GetStringValue()

	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := h.client.GetJob(ctx, request(t, map[string]any{"job_id": jobID}))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		st := job.Fields["status"].GetStringValue()
		if st == "SUCCEEDED" {
			if job.Fields["questions"].GetNumberValue() != 1 {
				t.Fatalf("job: %v", job)
			}
			break
		}
		if st == "FAILED" || time.Now().After(deadline) {
			t.Fatalf("job did not succeed: %v", job)
		}
		time.Sleep(10 * time.Millisecond)
	}

	exp, err := h.client.ExportJob(ctx, request(t, map[string]any{"job_id": jobID}))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(exp.Fields["xlsx_base64"].GetStringValue())
	if err != nil || len(data) < 2 || string(data[:2]) != "PK" {
		t.Fatalf("xlsx payload: %d bytes, err=%v", len(data), err)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.client.SubmitExtraction(context.Background(), request(t, map[string]any{"mode": "ocr", "pdf_base64": pdfB64}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.client.GetJob(context.Background(), request(t, map[string]any{"job_id": "6f1c2b9e-3a59-4a8e-9a57-5b1f0e2d8c11"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
	_, err = h.client.GetJob(context.Background(), request(t, map[string]any{"job_id": "nope"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, true)
	resp, err := h.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status: %v", resp.GetStatus())
	}
}
