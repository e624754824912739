package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/exam-importer/constants"
)

const (
	defaultDifficulty = 2
	minDifficulty     = 1
	maxDifficulty     = 5
	defaultConfidence = 0.5
)

// Coercer turns raw records into strict types. It never rejects a record:
// every missing or malformed field gets its default.
type Coercer struct {
	ids *TempIDs
}

func NewCoercer(ids *TempIDs) *Coercer {
	if ids == nil {
		ids = NewTempIDs("")
	}
	return &Coercer{ids: ids}
}

// Question coerces one raw question record.
func (c *Coercer) Question(raw RawRecord) ExtractedQuestion {
	f := raw.Fields
	topic, _ := constants.CanonicalizeTopic(toText(f["topic"]))
	confidence := toConfidence(f["confidence"])

	return ExtractedQuestion{
		TempID:             c.ids.Next(KindQuestion),
		Content:            toText(f["content"]),
		Solution:           toText(f["solution"]),
		Answer:             toText(f["answer"]),
		Hints:              toHints(f["hints"]),
		Topic:              topic,
		Difficulty:         toDifficulty(f["difficulty"]),
		Confidence:         confidence,
		QuestionNum:        toText(f["questionNum"]),
		DiagramDescription: toText(f["diagramDescription"]),
		Marks:              toMarks(f["marks"]),
		NeedsReview:        confidence < constants.ReviewConfidenceThreshold,
	}
}

// Lesson coerces one raw lesson record.
func (c *Coercer) Lesson(raw RawRecord) ExtractedLesson {
	f := raw.Fields
	topic, _ := constants.CanonicalizeTopic(toText(f["topic"]))
	contentType, _ := constants.CanonicalizeContentType(toText(f["contentType"]))

	order := 0
	if n, ok := toNumber(f["order"]); ok {
		order = int(math.Round(math.Max(math.MinInt32, math.Min(n, math.MaxInt32))))
	}

	return ExtractedLesson{
		TempID:      c.ids.Next(KindLesson),
		Title:       toText(f["title"]),
		Content:     toText(f["content"]),
		ContentType: contentType,
		Topic:       topic,
		Order:       order,
		Confidence:  toConfidence(f["confidence"]),
	}
}

// Records splits a mixed batch into coerced questions and lessons, keeping
// the input order within each kind.
func (c *Coercer) Records(raws []RawRecord) ([]ExtractedQuestion, []ExtractedLesson) {
	var qs []ExtractedQuestion
	var ls []ExtractedLesson
	for _, r := range raws {
		switch r.Kind {
		case KindQuestion:
			qs = append(qs, c.Question(r))
		case KindLesson:
			ls = append(ls, c.Lesson(r))
		}
	}
	return qs, ls
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// toNumber accepts JSON numbers and numeric strings. NaN and infinities are
// rejected so callers fall back to their defaults.
func toNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toDifficulty(v any) int {
	n, ok := toNumber(v)
	if !ok {
		return defaultDifficulty
	}
	n = math.Max(minDifficulty, math.Min(maxDifficulty, n))
	return int(math.Round(n))
}

// toConfidence passes numeric values through unclamped.
func toConfidence(v any) float64 {
	if n, ok := toNumber(v); ok {
		return n
	}
	return defaultConfidence
}

func toHints(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []string:
		return toHints(stringsToAny(t))
	case []any:
		var out []string
		for _, h := range t {
			if s := toText(h); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toMarks(v any) *int {
	n, ok := toNumber(v)
	if !ok || n < 0 {
		return nil
	}
	m := int(math.Round(math.Min(n, math.MaxInt32)))
	return &m
}

// HasDiagram reports whether the model flagged a figure for a raw question,
// either explicitly or by describing one.
func HasDiagram(raw RawRecord) bool {
	switch v := raw.Fields["hasDiagram"].(type) {
	case bool:
		if v {
			return true
		}
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "true") {
			return true
		}
	}
	return toText(raw.Fields["diagramDescription"]) != ""
}
