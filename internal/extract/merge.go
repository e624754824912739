package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	reSubPart    = regexp.MustCompile(`(?i)\(\s*(?:[ivxlcdm]+|[a-z])\s*\)`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reNumPrefix  = regexp.MustCompile(`^(?:QUESTION|QUES|QN|Q|NO)[.:#\-_]*`)
	reSeparators = regexp.MustCompile(`^[.:#\-_]+`)
	reFirstDigit = regexp.MustCompile(`\d+`)
)

// NormalizeQuestionNum reduces a printed question label to a canonical key:
// sub-part markers such as "(i)" or "(b)" are dropped, whitespace removed,
// letters upper-cased and a single "Q" prefix applied. "Q5(i)", "5 (ii)" and
// "Question 5" all become "Q5". An empty result means the label is unusable.
func NormalizeQuestionNum(raw string) string {
	s := reSubPart.ReplaceAllString(raw, "")
	s = reWhitespace.ReplaceAllString(s, "")
	s = strings.ToUpper(s)
	for {
		trimmed := reSeparators.ReplaceAllString(reNumPrefix.ReplaceAllString(s, ""), "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	s = strings.TrimRight(s, ".:#-_)")
	if s == "" {
		return ""
	}
	return "Q" + s
}

// questionNumber is the numeric part used for ordering; labels without digits
// sort as 0.
func questionNumber(key string) int {
	m := reFirstDigit.FindString(key)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// PageMerger folds per-page question fragments that share a normalized number
// into one record. Fragments without a usable number are kept as they are.
type PageMerger struct {
	order  []*ExtractedQuestion
	byKey  map[string]*ExtractedQuestion
	merged int
}

func NewPageMerger() *PageMerger {
	return &PageMerger{byKey: make(map[string]*ExtractedQuestion)}
}

// Add folds q into the merger and reports whether it was merged into an
// earlier fragment.
func (m *PageMerger) Add(q ExtractedQuestion) bool {
	key := NormalizeQuestionNum(q.QuestionNum)
	if key == "" {
		cp := q
		m.order = append(m.order, &cp)
		return false
	}
	q.QuestionNum = key

	prior, ok := m.byKey[key]
	if !ok {
		cp := q
		m.byKey[key] = &cp
		m.order = append(m.order, &cp)
		return false
	}

	switch {
	case q.Content == "":
	case prior.Content == "":
		prior.Content = q.Content
	default:
		prior.Content = prior.Content + "\n\n" + q.Content
	}
	if prior.DiagramDescription == "" {
		prior.DiagramDescription = q.DiagramDescription
	}
	if prior.DiagramImage == "" {
		prior.DiagramImage = q.DiagramImage
	}
	m.merged++
	return true
}

// Merged is the number of fragments folded into earlier records.
func (m *PageMerger) Merged() int { return m.merged }

// Questions returns the merged records ordered by the numeric part of their
// question number. Ties keep first-appearance order.
func (m *PageMerger) Questions() []ExtractedQuestion {
	out := make([]ExtractedQuestion, len(m.order))
	for i, q := range m.order {
		out[i] = *q
	}
	sort.SliceStable(out, func(i, j int) bool {
		return questionNumber(out[i].QuestionNum) < questionNumber(out[j].QuestionNum)
	})
	return out
}

// MergePages is the one-shot form of PageMerger.
func MergePages(qs []ExtractedQuestion) ([]ExtractedQuestion, int) {
	m := NewPageMerger()
	for _, q := range qs {
		m.Add(q)
	}
	return m.Questions(), m.Merged()
}
