package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
	"github.com/joseph-ayodele/exam-importer/internal/repository"
)

// Processor runs extraction jobs and records them in the job ledger when one
// is configured. A nil ledger turns recording off.
type Processor struct {
	logger    *slog.Logger
	extractor *Extractor
	jobsRepo  repository.ExtractJobRepository
}

func NewProcessor(logger *slog.Logger, extractor *Extractor, jobsRepo repository.ExtractJobRepository) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, extractor: extractor, jobsRepo: jobsRepo}
}

// HasLedger reports whether jobs are being recorded.
func (p *Processor) HasLedger() bool { return p.jobsRepo != nil }

// Ledger exposes the job ledger, or nil.
func (p *Processor) Ledger() repository.ExtractJobRepository { return p.jobsRepo }

// Process runs one job synchronously under a fresh job id. Ledger errors are
// logged; they never fail the job.
func (p *Processor) Process(ctx context.Context, mode constants.Mode, in Input) (string, extract.ExtractionResult, error) {
	jobID := uuid.New().String()
	p.record(ctx, jobID, mode, constants.JobStatusRunning, in)
	res, err := p.run(ctx, jobID, mode, in)
	return jobID, res, err
}

// Enqueued records a job accepted for background processing.
func (p *Processor) Enqueued(ctx context.Context, jobID string, mode constants.Mode, in Input) {
	p.record(ctx, jobID, mode, constants.JobStatusQueued, in)
}

func (p *Processor) record(ctx context.Context, jobID string, mode constants.Mode, status constants.JobStatus, in Input) {
	if p.jobsRepo == nil {
		return
	}
	_, err := p.jobsRepo.Start(ctx, repository.StartJob{
		ID:       jobID,
		Mode:     mode,
		Status:   status,
		ByteSize: int64(len(in.Bytes)),
		Metadata: in.JobMetadata,
	})
	if err != nil {
		p.logger.Error("processor.ledger.start_failed", "job_id", jobID, "status", status, "err", err)
	}
}

// ProcessQueued runs a job previously recorded with Enqueued.
func (p *Processor) ProcessQueued(ctx context.Context, jobID string, mode constants.Mode, in Input) (extract.ExtractionResult, error) {
	if p.jobsRepo != nil {
		if err := p.jobsRepo.MarkRunning(ctx, jobID); err != nil {
			p.logger.Warn("processor.ledger.mark_running_failed", "job_id", jobID, "err", err)
		}
	}
	return p.run(ctx, jobID, mode, in)
}

func (p *Processor) run(ctx context.Context, jobID string, mode constants.Mode, in Input) (extract.ExtractionResult, error) {
	ctx = common.WithJobID(ctx, jobID)

	res, err := p.extractor.Run(ctx, mode, in)
	if err != nil {
		p.logger.Error("processor.job.failed", "job_id", jobID, "mode", mode, "err", err)
		if p.jobsRepo != nil {
			if lerr := p.jobsRepo.FinishFailure(context.WithoutCancel(ctx), jobID, err.Error()); lerr != nil {
				p.logger.Error("processor.ledger.finish_failed", "job_id", jobID, "err", lerr)
			}
		}
		return res, err
	}

	if p.jobsRepo != nil {
		if lerr := p.jobsRepo.FinishSuccess(context.WithoutCancel(ctx), jobID, res); lerr != nil {
			p.logger.Error("processor.ledger.finish_failed", "job_id", jobID, "err", lerr)
		}
	}
	p.logger.Info("processor.job.ok",
		"job_id", jobID,
		"mode", mode,
		"questions", len(res.Questions),
		"lessons", len(res.Lessons),
		"needs_review", res.NeedsReviewCount(),
	)
	return res, nil
}
