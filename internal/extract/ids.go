package extract

import (
	"fmt"
	"strings"
)

// TempIDs hands out job-scoped temporary identifiers. IDs are never reused
// within one allocator.
type TempIDs struct {
	prefix    string
	questions int
	lessons   int
}

func NewTempIDs(jobID string) *TempIDs {
	prefix := strings.ReplaceAll(jobID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	if prefix == "" {
		prefix = "job"
	}
	return &TempIDs{prefix: prefix}
}

func (t *TempIDs) Next(kind RecordKind) string {
	switch kind {
	case KindLesson:
		t.lessons++
		return fmt.Sprintf("%s-l%04d", t.prefix, t.lessons)
	default:
		t.questions++
		return fmt.Sprintf("%s-q%04d", t.prefix, t.questions)
	}
}
