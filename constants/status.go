package constants

// JobStatus is the canonical status for rows in extract_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued    JobStatus = "QUEUED"    // accepted by the queue, not started
	JobStatusRunning   JobStatus = "RUNNING"   // in progress
	JobStatusSucceeded JobStatus = "SUCCEEDED" // result stored (possibly empty)
	JobStatusFailed    JobStatus = "FAILED"    // precondition or terminal failure
)

// Mode selects the extraction path.
type Mode string

const (
	ModeText   Mode = "text"
	ModeVision Mode = "vision"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeText, ModeVision:
		return Mode(s), true
	}
	return "", false
}
