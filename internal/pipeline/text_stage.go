package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/document"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
)

// RunTextExtraction extracts records from the PDF's text layer. The text is
// normalized, packed into paragraph-aligned chunks and each chunk is sent to
// the text model in order. Records repeated across chunks are dropped.
func (e *Extractor) RunTextExtraction(ctx context.Context, in Input) (extract.ExtractionResult, error) {
	start := time.Now()
	ctx, jobID := jobContext(ctx)
	stats := extract.JobStats{Mode: constants.ModeText}

	e.log.Info("pipeline.text.start", "job_id", jobID, "bytes", len(in.Bytes))

	pages, err := e.preconditions(ctx, constants.ModeText, in)
	if err != nil {
		e.log.Warn("pipeline.text.precondition_failed", "job_id", jobID, "error", err)
		return extract.ExtractionResult{}, err
	}
	stats.PageCount = pages

	doc, err := e.loader.Load(ctx, in.Bytes)
	if err != nil {
		return extract.ExtractionResult{}, fmt.Errorf("load document: %w", err)
	}
	text := document.NormalizeText(doc.Text)
	chunks := document.SplitIntoChunks(text, e.cfg.ChunkMaxChars)
	stats.UnitsTotal = len(chunks)
	if len(chunks) == 0 {
		e.log.Warn("pipeline.text.no_text", "job_id", jobID, "pages", pages,
			"hint", "the PDF has no text layer; try vision mode")
	}

	coercer := extract.NewCoercer(extract.NewTempIDs(jobID))
	var questions []extract.ExtractedQuestion
	var lessons []extract.ExtractedLesson

	for _, ch := range chunks {
		req := llm.ChatRequest{
			Messages: llm.TextMessages(ch.Text, ch.Index, len(chunks)),
			Timeout:  e.cfg.TextTimeout,
		}
		unit, payload, err := e.callUnit(ctx, ch.Index, req, jobID)
		if err != nil {
			return extract.ExtractionResult{}, err
		}
		e.tally(&stats, unit, payload)

		qs, ls := coercer.Records(payload.Records)
		questions = append(questions, qs...)
		lessons = append(lessons, ls...)

		e.log.Debug("pipeline.text.unit_done",
			"job_id", jobID, "chunk", ch.Index, "chars", ch.Len(),
			"questions", len(qs), "lessons", len(ls),
			"elapsed_ms", unit.Duration.Milliseconds(),
		)
	}

	dedup := extract.NewDeduplicator(e.cfg.LessonKeyChars)
	questions, dq := dedup.Questions(questions)
	lessons, dl := dedup.Lessons(lessons)
	stats.DuplicateRecords = dq + dl
	stats.Duration = time.Since(start)

	res := extract.ExtractionResult{
		Questions:   questions,
		Lessons:     lessons,
		JobMetadata: in.JobMetadata,
		Stats:       stats,
	}
	e.log.Info("pipeline.text.ok",
		"job_id", jobID,
		"chunks", stats.UnitsTotal,
		"units_failed", stats.UnitsFailed,
		"parse_failures", stats.ParseFailures,
		"questions", len(res.Questions),
		"lessons", len(res.Lessons),
		"duplicates", stats.DuplicateRecords,
		"needs_review", res.NeedsReviewCount(),
		"elapsed_ms", stats.Duration.Milliseconds(),
	)
	return res, nil
}
