// Package extract holds the strictly-typed question and lesson records and the
// pure transformations applied to them: coercion from raw model output,
// page-spanning merge and chunk-overlap deduplication.
package extract

import (
	"time"

	"github.com/joseph-ayodele/exam-importer/constants"
)

// RecordKind tags which strict type a RawRecord is destined for.
type RecordKind int

const (
	KindQuestion RecordKind = iota + 1
	KindLesson
)

func (k RecordKind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindLesson:
		return "lesson"
	}
	return "unknown"
}

// RawRecord is one untyped item recovered from a model response. It must be
// converted by a Coercer before leaving the pipeline.
type RawRecord struct {
	Kind   RecordKind
	Fields map[string]any
}

// ExtractedQuestion is a validated practice question.
// NeedsReview == (Confidence < constants.ReviewConfidenceThreshold).
type ExtractedQuestion struct {
	TempID             string          `json:"tempId"`
	Content            string          `json:"content"`
	Solution           string          `json:"solution,omitempty"`
	Answer             string          `json:"answer,omitempty"`
	Hints              []string        `json:"hints,omitempty"`
	Topic              constants.Topic `json:"topic"`
	Difficulty         int             `json:"difficulty"`
	Confidence         float64         `json:"confidence"`
	QuestionNum        string          `json:"questionNum,omitempty"`
	DiagramDescription string          `json:"diagramDescription,omitempty"`
	DiagramImage       string          `json:"diagramImage,omitempty"`
	Marks              *int            `json:"marks,omitempty"`
	NeedsReview        bool            `json:"needsReview"`
}

// ExtractedLesson is a validated piece of teaching prose.
type ExtractedLesson struct {
	TempID      string                `json:"tempId"`
	Title       string                `json:"title"`
	Content     string                `json:"content"`
	ContentType constants.ContentType `json:"contentType"`
	Topic       constants.Topic       `json:"topic"`
	Order       int                   `json:"order"`
	Confidence  float64               `json:"confidence"`
}

// JobStats summarizes how a job went; per-unit failures surface only here.
type JobStats struct {
	Mode             constants.Mode `json:"mode"`
	PageCount        int            `json:"pageCount"`
	UnitsTotal       int            `json:"unitsTotal"`
	UnitsSucceeded   int            `json:"unitsSucceeded"`
	UnitsFailed      int            `json:"unitsFailed"`
	ParseFailures    int            `json:"parseFailures"`
	RawQuestions     int            `json:"rawQuestions"`
	RawLessons       int            `json:"rawLessons"`
	MergedQuestions  int            `json:"mergedQuestions,omitempty"`
	DuplicateRecords int            `json:"duplicateRecords,omitempty"`
	Duration         time.Duration  `json:"durationNs"`
}

// ExtractionResult is the pipeline's only output. JobMetadata is the caller's
// value, passed through untouched.
type ExtractionResult struct {
	Questions   []ExtractedQuestion `json:"questions"`
	Lessons     []ExtractedLesson   `json:"lessons"`
	JobMetadata map[string]any      `json:"jobMetadata,omitempty"`
	Stats       JobStats            `json:"stats"`
}

// NeedsReviewCount counts questions flagged for human review.
func (r ExtractionResult) NeedsReviewCount() int {
	n := 0
	for _, q := range r.Questions {
		if q.NeedsReview {
			n++
		}
	}
	return n
}
