package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/exam-importer/constants"
)

// Job is one extraction accepted for background processing.
type Job struct {
	ID          string
	Mode        constants.Mode
	Bytes       []byte
	Metadata    map[string]any
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
