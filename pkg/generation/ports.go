package generation

import (
	"context"

	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

// JobQueue is the part of *jobx.Queue the service uses.
type JobQueue interface {
	Submit(ctx context.Context, job jobx.Job) (jobx.JobInfo, error)
	Get(id string) (jobx.JobInfo, error)
	Cancel(id string) (jobx.JobInfo, error)
	Position(id string) (int, error)
	Stats() jobx.Stats
}

// Repository persists generation records. WriteStatus applies a status
// update keyed by its generation id.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id kernel.GenerationID) (*Record, error)
	GetByJobID(ctx context.Context, jobID string) (*Record, error)
	ListByUser(ctx context.Context, userID kernel.UserID, limit, offset int) ([]*Record, error)
	notifx.StatusWriter
}
