package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/exam-importer/internal/extract"
)

// ErrUnparseableResponse marks a reply from which no JSON object could be recovered.
var ErrUnparseableResponse = errors.New("unparseable model response")

var (
	reFence         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// Payload is what one model reply yielded. Failure is set when nothing could
// be parsed; Records is then empty. ParseResponse never returns an error.
type Payload struct {
	Records []extract.RawRecord
	Dropped int
	Renamed []string
	Failure error
}

func (p Payload) Count(kind extract.RecordKind) int {
	n := 0
	for _, r := range p.Records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// ParseResponse recovers question and lesson records from free-form model
// text: a fenced block is preferred, otherwise the span from the first "{" to
// the last "}". A trailing-comma repair is attempted once before giving up.
func ParseResponse(text string, logger *slog.Logger) Payload {
	if logger == nil {
		logger = slog.Default()
	}

	candidate, ok := locateJSON(text)
	if !ok {
		logger.Warn("llm.parse.no_json", "reply_len", len(text))
		return Payload{Failure: fmt.Errorf("%w: no JSON object found", ErrUnparseableResponse)}
	}

	doc, err := decodeObject(candidate)
	if err != nil {
		repaired := reTrailingComma.ReplaceAllString(candidate, "$1")
		doc, err = decodeObject(repaired)
		if err != nil {
			logger.Warn("llm.parse.decode_error", "error", err, "reply_len", len(text))
			return Payload{Failure: fmt.Errorf("%w: %v", ErrUnparseableResponse, err)}
		}
		logger.Debug("llm.parse.repaired", "fix", "trailing_comma")
	}

	rep := SanitizePayload(doc, logger)
	if err := ValidatePayload(doc); err != nil {
		logger.Debug("llm.parse.schema_mismatch", "error", err)
	}

	out := Payload{Dropped: rep.Dropped, Renamed: rep.Renamed}
	out.Records = append(out.Records, collect(doc, "questions", extract.KindQuestion)...)
	out.Records = append(out.Records, collect(doc, "lessons", extract.KindLesson)...)
	return out
}

func locateJSON(text string) (string, bool) {
	body := text
	if m := reFence.FindStringSubmatch(text); m != nil && strings.Contains(m[1], "{") {
		body = m[1]
	}
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return body[start : end+1], true
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON object at offset %d", dec.InputOffset())
	}
	if doc == nil {
		return nil, errors.New("reply is not a JSON object")
	}
	return doc, nil
}

func collect(doc map[string]any, key string, kind extract.RecordKind) []extract.RawRecord {
	items, _ := doc[key].([]any)
	out := make([]extract.RawRecord, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, extract.RawRecord{Kind: kind, Fields: m})
		}
	}
	return out
}
