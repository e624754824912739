// Package pipeline drives extraction jobs end to end: it checks preconditions
// once, walks units strictly in order and folds the per-unit records into one
// ExtractionResult.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/document"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
	"github.com/joseph-ayodele/exam-importer/internal/raster"
)

// Rasterizer is the page-rendering capability vision jobs need.
type Rasterizer interface {
	Available() error
	Rasterize(ctx context.Context, pdf []byte, opts raster.Options) (*raster.Result, error)
}

// Config holds limits and per-call timeouts for a job.
type Config struct {
	MaxBytes       int64
	MaxTextPages   int
	MaxVisionPages int
	ChunkMaxChars  int
	TextTimeout    time.Duration
	VisionTimeout  time.Duration
	DPI            int
	Format         string
	LessonKeyChars int
}

// ConfigFrom maps the application config onto pipeline settings.
func ConfigFrom(c *common.Config) Config {
	return Config{
		MaxBytes:       c.Limits.MaxBytes,
		MaxTextPages:   c.Limits.MaxTextPages,
		MaxVisionPages: c.Limits.MaxVisionPages,
		ChunkMaxChars:  c.Limits.ChunkMaxChars,
		TextTimeout:    c.Inference.TextTimeout,
		VisionTimeout:  c.Inference.VisionTimeout,
		DPI:            c.Raster.DPI,
		Format:         c.Raster.Format,
		LessonKeyChars: c.Dedup.LessonKeyChars,
	}
}

// Input is one job request. JobMetadata is opaque and returned unchanged.
type Input struct {
	Bytes       []byte
	JobMetadata map[string]any
}

type Extractor struct {
	cfg    Config
	loader document.Loader
	raster Rasterizer
	chat   llm.ChatClient
	log    *slog.Logger
}

func NewExtractor(cfg Config, loader document.Loader, rasterizer Rasterizer, chat llm.ChatClient, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkMaxChars <= 0 {
		cfg.ChunkMaxChars = 12000
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.Format == "" {
		cfg.Format = "png"
	}
	if cfg.LessonKeyChars <= 0 {
		cfg.LessonKeyChars = extract.DefaultLessonKeyChars
	}
	return &Extractor{cfg: cfg, loader: loader, raster: rasterizer, chat: chat, log: logger}
}

// Run dispatches on mode.
func (e *Extractor) Run(ctx context.Context, mode constants.Mode, in Input) (extract.ExtractionResult, error) {
	switch mode {
	case constants.ModeText:
		return e.RunTextExtraction(ctx, in)
	case constants.ModeVision:
		return e.RunVisionExtraction(ctx, in)
	default:
		return extract.ExtractionResult{}, common.NewAppError("INVALID_MODE", fmt.Sprintf("unknown mode %q", mode), common.ErrInvalidInput)
	}
}

// preconditions runs the hard checks once, cheapest first, and returns the
// document's page count. Nothing here allocates a workspace or calls a model.
func (e *Extractor) preconditions(ctx context.Context, mode constants.Mode, in Input) (int, error) {
	if len(in.Bytes) == 0 {
		return 0, common.NewPreconditionError("input", "document is empty", "send the PDF bytes of the paper to import")
	}
	if e.cfg.MaxBytes > 0 && int64(len(in.Bytes)) > e.cfg.MaxBytes {
		return 0, common.NewPreconditionError("size",
			fmt.Sprintf("document is %d bytes, limit is %d", len(in.Bytes), e.cfg.MaxBytes),
			"split the PDF or raise LIMIT_MAX_BYTES")
	}
	if mode == constants.ModeVision {
		if e.raster == nil {
			return 0, common.NewPreconditionError("rasterizer", "no page rasterizer configured", "install poppler-utils (pdftoppm)")
		}
		if err := e.raster.Available(); err != nil {
			return 0, err
		}
	}

	pages, err := e.loader.PageCount(in.Bytes)
	if err != nil {
		return 0, common.NewPreconditionError("document", fmt.Sprintf("cannot read PDF: %v", err), "check that the upload is a valid, unencrypted PDF")
	}
	limit, env := e.cfg.MaxTextPages, "LIMIT_MAX_TEXT_PAGES"
	if mode == constants.ModeVision {
		limit, env = e.cfg.MaxVisionPages, "LIMIT_MAX_VISION_PAGES"
	}
	if limit > 0 && pages > limit {
		return 0, common.NewPreconditionError("pages",
			fmt.Sprintf("document has %d pages, %s mode allows %d", pages, mode, limit),
			"split the PDF or raise "+env)
	}

	info := e.chat.Info()
	if !e.chat.IsAvailable(ctx) {
		return 0, common.NewPreconditionError("inference",
			fmt.Sprintf("%s is not reachable at %s", info.Provider, info.BaseURL),
			"start the inference service (for example `ollama serve`) or set INFERENCE_BASE_URL")
	}
	if mode == constants.ModeVision && !e.chat.HasVisionCapability(ctx) {
		return 0, common.NewPreconditionError("vision_model",
			fmt.Sprintf("vision model %q is not available on %s", info.VisionModel, info.Provider),
			"pull it first (for example `ollama pull "+info.VisionModel+"`) or set INFERENCE_VISION_MODEL")
	}
	return pages, nil
}

// jobContext returns the job id carried by ctx, assigning one if absent.
func jobContext(ctx context.Context) (context.Context, string) {
	if id := common.JobIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return common.WithJobID(ctx, id), id
}

// callUnit sends one unit to the model and parses the reply. A unit failure
// is recorded on the result; only cancellation of ctx is returned as error.
func (e *Extractor) callUnit(ctx context.Context, unit int, req llm.ChatRequest, jobID string) (extract.UnitResult, llm.Payload, error) {
	start := time.Now()
	res := extract.UnitResult{Index: unit}

	reply, err := e.chat.Chat(ctx, req)
	res.Duration = time.Since(start)
	if err != nil {
		if !common.IsUnitFailure(err) {
			return res, llm.Payload{}, err
		}
		res.Err = err
		e.log.Warn("pipeline.unit.failed",
			"job_id", jobID, "unit", unit, "vision", req.Vision,
			"error", err, "elapsed_ms", res.Duration.Milliseconds(),
		)
		return res, llm.Payload{}, nil
	}

	payload := llm.ParseResponse(reply, e.log.With("job_id", jobID, "unit", unit))
	if payload.Failure != nil {
		res.ParseFailed = true
		e.log.Warn("pipeline.unit.unparseable",
			"job_id", jobID, "unit", unit, "error", payload.Failure, "reply_len", len(reply),
		)
	}
	res.RawCount = len(payload.Records)
	return res, payload, nil
}

func (e *Extractor) tally(stats *extract.JobStats, u extract.UnitResult, p llm.Payload) {
	switch {
	case u.Failed():
		stats.UnitsFailed++
	default:
		stats.UnitsSucceeded++
	}
	if u.ParseFailed {
		stats.ParseFailures++
	}
	stats.RawQuestions += p.Count(extract.KindQuestion)
	stats.RawLessons += p.Count(extract.KindLesson)
}
