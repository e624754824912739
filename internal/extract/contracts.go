package extract

import (
	"time"
)

// UnitResult is what one extraction unit (a text chunk or a page image)
// contributed to a job. Err is set when the model call itself failed; a unit
// whose reply could not be parsed has ParseFailed set and no records.
type UnitResult struct {
	Index       int
	Questions   []ExtractedQuestion
	Lessons     []ExtractedLesson
	RawCount    int
	ParseFailed bool
	Err         error
	Duration    time.Duration
}

// Failed reports whether the unit's model call failed.
func (u UnitResult) Failed() bool { return u.Err != nil }
