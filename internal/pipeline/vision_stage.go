package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
	"github.com/joseph-ayodele/exam-importer/internal/raster"
)

// RunVisionExtraction renders every page and sends each image to the vision
// model in page order. Question fragments that continue across pages are
// merged by their normalized question number.
func (e *Extractor) RunVisionExtraction(ctx context.Context, in Input) (res extract.ExtractionResult, err error) {
	start := time.Now()
	ctx, jobID := jobContext(ctx)
	stats := extract.JobStats{Mode: constants.ModeVision}

	e.log.Info("pipeline.vision.start", "job_id", jobID, "bytes", len(in.Bytes))

	pages, err := e.preconditions(ctx, constants.ModeVision, in)
	if err != nil {
		e.log.Warn("pipeline.vision.precondition_failed", "job_id", jobID, "error", err)
		return extract.ExtractionResult{}, err
	}
	stats.PageCount = pages

	rendered, err := e.raster.Rasterize(ctx, in.Bytes, raster.Options{
		DPI:      e.cfg.DPI,
		Format:   e.cfg.Format,
		MaxPages: e.cfg.MaxVisionPages,
	})
	if err != nil {
		return extract.ExtractionResult{}, fmt.Errorf("rasterize: %w", err)
	}
	defer func() {
		if rerr := rendered.Release(); rerr != nil {
			e.log.Warn("pipeline.vision.release_failed", "job_id", jobID, "error", rerr)
		}
	}()
	stats.UnitsTotal = len(rendered.Pages)

	coercer := extract.NewCoercer(extract.NewTempIDs(jobID))
	merger := extract.NewPageMerger()
	lessons := make([]extract.ExtractedLesson, 0)

	for _, page := range rendered.Pages {
		img := llm.Image{MimeType: page.MimeType, Base64: page.Encoded}
		req := llm.ChatRequest{
			Messages: llm.VisionMessages(img, page.PageNumber, rendered.TotalPages),
			Vision:   true,
			Timeout:  e.cfg.VisionTimeout,
		}
		unit, payload, err := e.callUnit(ctx, page.PageNumber, req, jobID)
		if err != nil {
			return extract.ExtractionResult{}, err
		}
		e.tally(&stats, unit, payload)

		nq, nl := 0, 0
		for _, raw := range payload.Records {
			switch raw.Kind {
			case extract.KindQuestion:
				q := coercer.Question(raw)
				if extract.HasDiagram(raw) {
					q.DiagramImage = page.DataURL()
				}
				merger.Add(q)
				nq++
			case extract.KindLesson:
				lessons = append(lessons, coercer.Lesson(raw))
				nl++
			}
		}

		e.log.Debug("pipeline.vision.unit_done",
			"job_id", jobID, "page", page.PageNumber,
			"questions", nq, "lessons", nl,
			"elapsed_ms", unit.Duration.Milliseconds(),
		)
	}

	stats.MergedQuestions = merger.Merged()
	stats.Duration = time.Since(start)

	res = extract.ExtractionResult{
		Questions:   merger.Questions(),
		Lessons:     lessons,
		JobMetadata: in.JobMetadata,
		Stats:       stats,
	}
	e.log.Info("pipeline.vision.ok",
		"job_id", jobID,
		"pages", stats.UnitsTotal,
		"units_failed", stats.UnitsFailed,
		"parse_failures", stats.ParseFailures,
		"questions", len(res.Questions),
		"merged", stats.MergedQuestions,
		"lessons", len(res.Lessons),
		"needs_review", res.NeedsReviewCount(),
		"elapsed_ms", stats.Duration.Milliseconds(),
	)
	return res, nil
}
