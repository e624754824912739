// Package export renders extraction results as XLSX workbooks for review.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/exam-importer/internal/extract"
)

const (
	SheetQuestions = "Questions"
	SheetLessons   = "Lessons"
	SheetSummary   = "Summary"

	// Excel rejects cells longer than this.
	maxCellChars = 32767
)

var (
	questionHeaders = []string{"Temp ID", "Question #", "Question", "Topic", "Difficulty", "Confidence", "Needs Review", "Marks", "Answer", "Solution", "Hints", "Diagram"}
	lessonHeaders   = []string{"Temp ID", "Order", "Title", "Type", "Topic", "Confidence", "Content"}
)

// Service produces XLSX bytes for an ExtractionResult.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportResultXLSX writes one sheet per record kind plus a job summary.
// Questions flagged for review are highlighted.
func (s *Service) ExportResultXLSX(_ context.Context, res extract.ExtractionResult) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetQuestions); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetLessons, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	idx, _ := f.GetSheetIndex(SheetQuestions)
	f.SetActiveSheet(idx)

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	review, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFF2CC"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	if err := writeRow(f, SheetQuestions, 1, toAny(questionHeaders)); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(SheetQuestions, "A1", lastCell(len(questionHeaders), 1), header)
	for i, q := range res.Questions {
		row := i + 2
		if err := writeRow(f, SheetQuestions, row, questionRow(q)); err != nil {
			return nil, err
		}
		if q.NeedsReview {
			_ = f.SetCellStyle(SheetQuestions, fmt.Sprintf("A%d", row), lastCell(len(questionHeaders), row), review)
		}
	}

	if err := writeRow(f, SheetLessons, 1, toAny(lessonHeaders)); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(SheetLessons, "A1", lastCell(len(lessonHeaders), 1), header)
	for i, l := range res.Lessons {
		if err := writeRow(f, SheetLessons, i+2, lessonRow(l)); err != nil {
			return nil, err
		}
	}

	if err := writeSummary(f, res, header); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(SheetQuestions, "A", "B", 14)
	_ = f.SetColWidth(SheetQuestions, "C", "C", 60)
	_ = f.SetColWidth(SheetQuestions, "D", "H", 12)
	_ = f.SetColWidth(SheetQuestions, "I", "L", 40)
	_ = f.SetColWidth(SheetLessons, "A", "B", 12)
	_ = f.SetColWidth(SheetLessons, "C", "C", 30)
	_ = f.SetColWidth(SheetLessons, "D", "F", 14)
	_ = f.SetColWidth(SheetLessons, "G", "G", 80)
	_ = f.SetColWidth(SheetSummary, "A", "B", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"questions", len(res.Questions),
		"lessons", len(res.Lessons),
		"needs_review", res.NeedsReviewCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func questionRow(q extract.ExtractedQuestion) []any {
	var marks any = ""
	if q.Marks != nil {
		marks = *q.Marks
	}
	review := ""
	if q.NeedsReview {
		review = "yes"
	}
	diagram := q.DiagramDescription
	if diagram == "" && q.DiagramImage != "" {
		diagram = "(page image attached)"
	}
	return []any{
		q.TempID,
		q.QuestionNum,
		truncate(q.Content, maxCellChars),
		string(q.Topic),
		q.Difficulty,
		q.Confidence,
		review,
		marks,
		truncate(q.Answer, maxCellChars),
		truncate(q.Solution, maxCellChars),
		truncate(strings.Join(q.Hints, "\n"), maxCellChars),
		truncate(diagram, maxCellChars),
	}
}

func lessonRow(l extract.ExtractedLesson) []any {
	return []any{
		l.TempID,
		l.Order,
		truncate(l.Title, maxCellChars),
		string(l.ContentType),
		string(l.Topic),
		l.Confidence,
		truncate(l.Content, maxCellChars),
	}
}

func writeSummary(f *excelize.File, res extract.ExtractionResult, header int) error {
	st := res.Stats
	rows := [][]any{
		{"Field", "Value"},
		{"Mode", string(st.Mode)},
		{"Pages", st.PageCount},
		{"Units", st.UnitsTotal},
		{"Units failed", st.UnitsFailed},
		{"Unparseable replies", st.ParseFailures},
		{"Questions", len(res.Questions)},
		{"Lessons", len(res.Lessons)},
		{"Needs review", res.NeedsReviewCount()},
		{"Merged fragments", st.MergedQuestions},
		{"Duplicates dropped", st.DuplicateRecords},
		{"Duration", st.Duration.Round(time.Millisecond).String()},
	}

	keys := make([]string, 0, len(res.JobMetadata))
	for k := range res.JobMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []any{"meta." + k, fmt.Sprint(res.JobMetadata[k])})
	}

	for i, r := range rows {
		if err := writeRow(f, SheetSummary, i+1, r); err != nil {
			return err
		}
	}
	return f.SetCellStyle(SheetSummary, "A1", "B1", header)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func lastCell(cols, row int) string {
	cell, _ := excelize.CoordinatesToCellName(cols, row)
	return cell
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
