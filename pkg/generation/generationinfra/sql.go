package generationinfra

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/culturalsoundlab/soundlab/pkg/generation"
	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

const columns = `id, user_id, job_id, type, title, parameters, status, progress,
	result_url, error_message, processing_time, metadata, created_at, updated_at`

// SQLRepository stores generation records in the generations table. Queries
// are written with ? placeholders and rebound for the connected driver, so
// the same repository runs on Postgres and SQLite.
type SQLRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ generation.Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a repository over db.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

func (r *SQLRepository) Create(ctx context.Context, rec *generation.Record) error {
	query := r.db.Rebind(`
		INSERT INTO generations (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID.String(), rec.UserID.String(), rec.JobID, string(rec.Type), rec.Title, rec.Parameters,
		rec.Status, rec.Progress, rec.ResultURL, rec.ErrorMessage, rec.ProcessingTime, rec.Metadata,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return generation.NewError(generation.ErrDuplicate, err).WithDetail("generation_id", rec.ID)
		}
		return generation.NewError(generation.ErrPersistFailed, err).WithDetail("generation_id", rec.ID)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, id kernel.GenerationID) (*generation.Record, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM generations WHERE id = ?`, id.String())
}

func (r *SQLRepository) GetByJobID(ctx context.Context, jobID string) (*generation.Record, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM generations WHERE job_id = ?`, jobID)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg string) (*generation.Record, error) {
	var rec generation.Record
	if err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, generation.NewError(generation.ErrNotFound, nil).WithDetail("id", arg)
		}
		return nil, generation.NewError(generation.ErrPersistFailed, err)
	}
	return &rec, nil
}

// ListByUser returns the user's records, newest first.
func (r *SQLRepository) ListByUser(ctx context.Context, userID kernel.UserID, limit, offset int) ([]*generation.Record, error) {
	query := r.db.Rebind(`
		SELECT ` + columns + `
		FROM generations
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`)

	var recs []generation.Record
	if err := r.db.SelectContext(ctx, &recs, query, userID.String(), limit, offset); err != nil {
		return nil, generation.NewError(generation.ErrPersistFailed, err).WithDetail("user_id", userID)
	}

	result := make([]*generation.Record, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}

// WriteStatus implements notifx.StatusWriter. The result fields are only
// overwritten when the update carries them. A non-terminal update never
// replaces a terminal row; such stale updates are ignored.
func (r *SQLRepository) WriteStatus(ctx context.Context, u notifx.StatusUpdate) error {
	at := u.At
	if at.IsZero() {
		at = r.now()
	}
	sets := []string{"status = ?", "progress = ?", "error_message = ?", "updated_at = ?"}
	args := []any{u.Status, u.Progress, u.Error, at.UTC()}
	if u.ResultURL != "" {
		sets = append(sets, "result_url = ?")
		args = append(args, u.ResultURL)
	}
	if u.ProcessingTime != 0 {
		sets = append(sets, "processing_time = ?")
		args = append(args, u.ProcessingTime)
	}
	if len(u.Metadata) > 0 {
		sets = append(sets, "metadata = ?")
		args = append(args, string(u.Metadata))
	}
	where := "id = ?"
	args = append(args, u.GenerationID)
	terminal := jobx.Status(u.Status).IsTerminal()
	if !terminal {
		where += " AND status NOT IN (?, ?)"
		args = append(args, string(jobx.StatusCompleted), string(jobx.StatusFailed))
	}

	query := r.db.Rebind(`UPDATE generations SET ` + strings.Join(sets, ", ") + ` WHERE ` + where)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return generation.NewError(generation.ErrPersistFailed, err).WithDetail("generation_id", u.GenerationID)
	}
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return nil
	}
	if !terminal {
		var count int
		if err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM generations WHERE id = ?`), u.GenerationID); err != nil {
			return generation.NewError(generation.ErrPersistFailed, err).WithDetail("generation_id", u.GenerationID)
		}
		if count > 0 {
			logx.WithFields(logx.Fields{
				"generation_id": u.GenerationID,
				"status":        u.Status,
			}).Debug("generation: ignoring stale status for finished record")
			return nil
		}
	}
	return generation.NewError(generation.ErrNotFound, nil).WithDetail("generation_id", u.GenerationID)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// modernc.org/sqlite reports constraint failures in the message text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
