package extract

import (
	"strings"
)

// DefaultLessonKeyChars bounds the lesson identity key.
const DefaultLessonKeyChars = 200

// Deduplicator drops records repeated across overlapping text chunks. The
// first occurrence wins and order is otherwise preserved.
type Deduplicator struct {
	LessonKeyChars int
}

func NewDeduplicator(lessonKeyChars int) Deduplicator {
	if lessonKeyChars <= 0 {
		lessonKeyChars = DefaultLessonKeyChars
	}
	return Deduplicator{LessonKeyChars: lessonKeyChars}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// QuestionKey is the case and whitespace insensitive identity of a question.
func QuestionKey(q ExtractedQuestion) string {
	return collapse(q.Content + q.Answer)
}

// LessonKey is the normalized prefix of a lesson's content.
func (d Deduplicator) LessonKey(l ExtractedLesson) string {
	key := collapse(l.Content)
	limit := d.LessonKeyChars
	if limit <= 0 {
		limit = DefaultLessonKeyChars
	}
	r := []rune(key)
	if len(r) > limit {
		key = string(r[:limit])
	}
	return key
}

// Questions returns qs without repeats and the number removed.
func (d Deduplicator) Questions(qs []ExtractedQuestion) ([]ExtractedQuestion, int) {
	seen := make(map[string]struct{}, len(qs))
	out := make([]ExtractedQuestion, 0, len(qs))
	for _, q := range qs {
		k := QuestionKey(q)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, q)
	}
	return out, len(qs) - len(out)
}

// Lessons returns ls without repeats and the number removed.
func (d Deduplicator) Lessons(ls []ExtractedLesson) ([]ExtractedLesson, int) {
	seen := make(map[string]struct{}, len(ls))
	out := make([]ExtractedLesson, 0, len(ls))
	for _, l := range ls {
		k := d.LessonKey(l)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out, len(ls) - len(out)
}
