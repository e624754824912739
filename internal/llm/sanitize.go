package llm

import (
	"log/slog"
	"strings"
)

var (
	listSynonyms = [][2]string{
		{"items", "questions"},
		{"exercises", "questions"},
		{"problems", "questions"},
		{"notes", "lessons"},
		{"sections", "lessons"},
	}

	fieldSynonyms = map[string]string{
		"question_num":        "questionNum",
		"questionnumber":      "questionNum",
		"question_number":     "questionNum",
		"number":              "questionNum",
		"question":            "content",
		"text":                "content",
		"body":                "content",
		"diagram_description": "diagramDescription",
		"diagram":             "diagramDescription",
		"has_diagram":         "hasDiagram",
		"content_type":        "contentType",
		"type":                "contentType",
		"hint":                "hints",
		"mark":                "marks",
		"points":              "marks",
		"worked_solution":     "solution",
		"final_answer":        "answer",
	}
)

// SanitizeReport lists what SanitizePayload changed.
type SanitizeReport struct {
	Renamed []string
	Dropped int
}

// SanitizePayload renames known key synonyms to the canonical camelCase names
// and drops list items that are not objects. Canonical keys already present
// are never overwritten.
func SanitizePayload(doc map[string]any, logger *slog.Logger) SanitizeReport {
	if logger == nil {
		logger = slog.Default()
	}
	var rep SanitizeReport

	for _, syn := range listSynonyms {
		rename(doc, syn[0], syn[1], &rep)
	}

	for _, key := range []string{"questions", "lessons"} {
		v, ok := doc[key]
		if !ok {
			continue
		}
		items, ok := v.([]any)
		if !ok {
			delete(doc, key)
			rep.Dropped++
			continue
		}
		kept := items[:0]
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				rep.Dropped++
				continue
			}
			sanitizeFields(m, &rep)
			kept = append(kept, m)
		}
		doc[key] = kept
	}

	if len(rep.Renamed) > 0 || rep.Dropped > 0 {
		logger.Debug("llm.parse.sanitize", "renamed", rep.Renamed, "dropped", rep.Dropped)
	}
	return rep
}

func sanitizeFields(m map[string]any, rep *SanitizeReport) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for _, k := range keys {
		lk := strings.ToLower(k)
		if to, ok := fieldSynonyms[lk]; ok && k != to {
			rename(m, k, to, rep)
		}
	}
}

func rename(m map[string]any, from, to string, rep *SanitizeReport) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, exists := m[to]; !exists {
		m[to] = v
		rep.Renamed = append(rep.Renamed, from+"->"+to)
	}
	delete(m, from)
}
