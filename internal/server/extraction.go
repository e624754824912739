package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/async"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/export"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
	"github.com/joseph-ayodele/exam-importer/internal/pipeline"
	"github.com/joseph-ayodele/exam-importer/internal/repository"
)

// JobProcessor is the part of pipeline.Processor the service calls.
type JobProcessor interface {
	Process(ctx context.Context, mode constants.Mode, in pipeline.Input) (string, extract.ExtractionResult, error)
	Enqueued(ctx context.Context, jobID string, mode constants.Mode, in pipeline.Input)
	Ledger() repository.ExtractJobRepository
}

// JobQueue is the part of async.ProcessorQueue the service calls.
type JobQueue interface {
	Enqueue(ctx context.Context, job async.Job) error
	State(id string) (async.JobState, bool)
}

type ExtractionService struct {
	processor JobProcessor
	queue     JobQueue
	exporter  *export.Service
	logger    *slog.Logger
}

// NewExtractionService wires the service. A nil queue disables SubmitExtraction.
func NewExtractionService(proc JobProcessor, queue JobQueue, exporter *export.Service, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	return &ExtractionService{processor: proc, queue: queue, exporter: exporter, logger: logger}
}

// RunTextExtraction: {pdf_base64, metadata} -> ExtractionResult.
func (s *ExtractionService) RunTextExtraction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.runSync(ctx, constants.ModeText, in)
}

// RunVisionExtraction: {pdf_base64, metadata} -> ExtractionResult.
func (s *ExtractionService) RunVisionExtraction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.runSync(ctx, constants.ModeVision, in)
}

func (s *ExtractionService) runSync(ctx context.Context, mode constants.Mode, in *structpb.Struct) (*structpb.Struct, error) {
	data, err := decodePDF(in)
	if err != nil {
		s.logger.Warn("grpc.extract.invalid", "mode", mode, "err", err)
		return nil, err
	}
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
		ctx = common.WithRequestID(ctx, reqID)
	}

	start := time.Now()
	s.logger.Info("grpc.extract.start", "req_id", reqID, "mode", mode, "bytes", len(data))
	jobID, res, err := s.processor.Process(ctx, mode, pipeline.Input{Bytes: data, JobMetadata: metadataField(in)})
	if err != nil {
		s.logger.Error("grpc.extract.failed", "req_id", reqID, "job_id", jobID, "mode", mode, "err", err)
		return nil, common.ToStatus(err)
	}
	s.logger.Info("grpc.extract.ok",
		"req_id", reqID,
		"job_id", jobID,
		"questions", len(res.Questions),
		"lessons", len(res.Lessons),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	out, err := toStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	out.Fields["job_id"] = structpb.NewStringValue(jobID)
	return out, nil
}

// SubmitExtraction: {mode, pdf_base64, metadata} -> {job_id}.
func (s *ExtractionService) SubmitExtraction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.queue == nil {
		return nil, status.Error(codes.Unimplemented, "background jobs are disabled")
	}
	modeStr := stringField(in, "mode")
	v := common.NewValidator().Field("mode", modeStr, common.Required, common.OneOf(string(constants.ModeText), string(constants.ModeVision)))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	mode, _ := constants.ParseMode(modeStr)
	data, err := decodePDF(in)
	if err != nil {
		return nil, err
	}

	jobID, err := s.Submit(ctx, mode, data, metadataField(in))
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{"job_id": jobID})
}

// Submit records and enqueues one background job. Errors are gRPC statuses.
func (s *ExtractionService) Submit(ctx context.Context, mode constants.Mode, data []byte, metadata map[string]any) (string, error) {
	if s.queue == nil {
		return "", status.Error(codes.Unimplemented, "background jobs are disabled")
	}
	jobID := uuid.New().String()
	pin := pipeline.Input{Bytes: data, JobMetadata: metadata}
	s.processor.Enqueued(ctx, jobID, mode, pin)

	err := s.queue.Enqueue(ctx, async.Job{ID: jobID, Mode: mode, Bytes: data, Metadata: metadata})
	if err != nil {
		s.logger.Error("grpc.submit.enqueue_failed", "job_id", jobID, "err", err)
		if ledger := s.processor.Ledger(); ledger != nil {
			if lerr := ledger.FinishFailure(context.WithoutCancel(ctx), jobID, err.Error()); lerr != nil {
				s.logger.Error("grpc.submit.ledger_failed", "job_id", jobID, "err", lerr)
			}
		}
		if errors.Is(err, async.ErrQueueClosed) {
			return "", status.Error(codes.Unavailable, err.Error())
		}
		return "", status.FromContextError(err).Err()
	}

	s.logger.Info("grpc.submit.ok", "job_id", jobID, "mode", mode, "bytes", len(data))
	return jobID, nil
}

// GetJob: {job_id} -> job summary, with the result once the job succeeded.
func (s *ExtractionService) GetJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	jobID, err := jobIDField(in)
	if err != nil {
		return nil, err
	}
	view, _, err := s.lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out, err := toStruct(view)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode job: %v", err)
	}
	return out, nil
}

// ExportJob: {job_id} -> {job_id, xlsx_base64} for a succeeded job.
func (s *ExtractionService) ExportJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	jobID, err := jobIDField(in)
	if err != nil {
		return nil, err
	}
	view, res, err := s.lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "job %s has no result (status %v)", jobID, view["status"])
	}
	data, err := s.exporter.ExportResultXLSX(ctx, *res)
	if err != nil {
		s.logger.Error("grpc.export.failed", "job_id", jobID, "err", err)
		return nil, status.Errorf(codes.Internal, "export: %v", err)
	}
	s.logger.Info("grpc.export.ok", "job_id", jobID, "bytes", len(data))
	return structpb.NewStruct(map[string]any{
		"job_id":      jobID,
		"xlsx_base64": base64.StdEncoding.EncodeToString(data),
	})
}

// lookup prefers the ledger and falls back to the queue's in-memory state.
// A ledger error is reported only when the queue does not know the job either.
func (s *ExtractionService) lookup(ctx context.Context, jobID string) (map[string]any, *extract.ExtractionResult, error) {
	var ledgerErr error
	if ledger := s.processor.Ledger(); ledger != nil {
		row, err := ledger.Get(ctx, jobID)
		if err == nil {
			return ledgerRowMap(row), row.Result, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error("grpc.job.lookup_failed", "job_id", jobID, "err", err)
			ledgerErr = err
		}
	}
	if s.queue != nil {
		if st, ok := s.queue.State(jobID); ok {
			return queueStateMap(st), st.Result, nil
		}
	}
	if ledgerErr != nil {
		return nil, nil, common.ToStatus(ledgerErr)
	}
	return nil, nil, common.NotFoundError("job " + jobID + " not found")
}

func jobIDField(in *structpb.Struct) (string, error) {
	id := stringField(in, "job_id")
	v := common.NewValidator().Field("job_id", id, common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", err
	}
	return id, nil
}
