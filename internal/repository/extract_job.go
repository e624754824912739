package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
)

// ExtractJob is one row of the job ledger.
type ExtractJob struct {
	ID           string
	Mode         constants.Mode
	Status       constants.JobStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	ByteSize     int64
	PageCount    int
	UnitsTotal   int
	UnitsFailed  int
	Questions    int
	Lessons      int
	NeedsReview  int
	ErrorMessage string
	Metadata     map[string]any
	Result       *extract.ExtractionResult
}

const (
	tableExtractJob = "extract_job"

	colID           = "id"
	colMode         = "mode"
	colStatus       = "status"
	colStartedAt    = "started_at"
	colFinishedAt   = "finished_at"
	colByteSize     = "byte_size"
	colPageCount    = "page_count"
	colUnitsTotal   = "units_total"
	colUnitsFailed  = "units_failed"
	colQuestions    = "questions"
	colLessons      = "lessons"
	colNeedsReview  = "needs_review"
	colErrorMessage = "error_message"
	colMetadata     = "metadata_json"
	colResult       = "result_json"
)

// jobColumns is the scan order of scanJob.
var jobColumns = []string{
	colID, colMode, colStatus, colStartedAt, colFinishedAt, colByteSize, colPageCount,
	colUnitsTotal, colUnitsFailed, colQuestions, colLessons, colNeedsReview,
	colErrorMessage, colMetadata, colResult,
}

// StartJob describes a job being recorded.
type StartJob struct {
	ID       string
	Mode     constants.Mode
	Status   constants.JobStatus
	ByteSize int64
	Metadata map[string]any
}

type ExtractJobRepository interface {
	Start(ctx context.Context, in StartJob) (*ExtractJob, error)
	MarkRunning(ctx context.Context, id string) error
	FinishSuccess(ctx context.Context, id string, res extract.ExtractionResult) error
	FinishFailure(ctx context.Context, id string, message string) error
	Get(ctx context.Context, id string) (*ExtractJob, error)
	ListRecent(ctx context.Context, limit int) ([]*ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log}
}

func (r *extractJobRepo) Start(ctx context.Context, in StartJob) (*ExtractJob, error) {
	if in.Status == "" {
		in.Status = constants.JobStatusRunning
	}
	meta, err := marshalNullable(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	now := time.Now().UTC()

	query, args := r.db.builder().Insert(tableExtractJob).
		Columns(colID, colMode, colStatus, colStartedAt, colByteSize, colMetadata).
		Values(in.ID, string(in.Mode), string(in.Status), now, in.ByteSize, meta).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("extract_job start failed", "job_id", in.ID, "err", err)
		return nil, common.NewAppError("DB_ERROR", "start extract job", errors.Join(common.ErrDatabase, err))
	}
	r.log.Info("extract_job started", "job_id", in.ID, "mode", in.Mode, "status", in.Status)
	return &ExtractJob{
		ID:        in.ID,
		Mode:      in.Mode,
		Status:    in.Status,
		StartedAt: now,
		ByteSize:  in.ByteSize,
		Metadata:  in.Metadata,
	}, nil
}

func (r *extractJobRepo) MarkRunning(ctx context.Context, id string) error {
	return r.update(ctx, id, r.db.builder().Update(tableExtractJob).
		Set(colStatus, string(constants.JobStatusRunning)))
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, id string, res extract.ExtractionResult) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	st := res.Stats
	err = r.update(ctx, id, r.db.builder().Update(tableExtractJob).
		Set(colStatus, string(constants.JobStatusSucceeded)).
		Set(colFinishedAt, time.Now().UTC()).
		Set(colPageCount, st.PageCount).
		Set(colUnitsTotal, st.UnitsTotal).
		Set(colUnitsFailed, st.UnitsFailed).
		Set(colQuestions, len(res.Questions)).
		Set(colLessons, len(res.Lessons)).
		Set(colNeedsReview, res.NeedsReviewCount()).
		Set(colResult, string(body)))
	if err != nil {
		return err
	}
	r.log.Info("extract_job finished (SUCCEEDED)", "job_id", id, "questions", len(res.Questions), "lessons", len(res.Lessons))
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, id string, message string) error {
	err := r.update(ctx, id, r.db.builder().Update(tableExtractJob).
		Set(colStatus, string(constants.JobStatusFailed)).
		Set(colFinishedAt, time.Now().UTC()).
		Set(colErrorMessage, message))
	if err != nil {
		return err
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", id, "error", message)
	return nil
}

func (r *extractJobRepo) update(ctx context.Context, id string, u *entsql.UpdateBuilder) error {
	query, args := u.Where(entsql.EQ(colID, id)).Query()
	var res sql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		r.log.Error("extract_job update failed", "job_id", id, "err", err)
		return common.NewAppError("DB_ERROR", "update extract job", errors.Join(common.ErrDatabase, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError("NOT_FOUND", "extract job "+id, common.ErrNotFound)
	}
	return nil
}

func (r *extractJobRepo) selectJobs() *entsql.Selector {
	b := r.db.builder()
	return b.Select(jobColumns...).From(b.Table(tableExtractJob))
}

func (r *extractJobRepo) Get(ctx context.Context, id string) (*ExtractJob, error) {
	query, args := r.selectJobs().Where(entsql.EQ(colID, id)).Query()
	jobs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "get extract job", errors.Join(common.ErrDatabase, err))
	}
	if len(jobs) == 0 {
		return nil, common.NewAppError("NOT_FOUND", "extract job "+id, common.ErrNotFound)
	}
	return jobs[0], nil
}

func (r *extractJobRepo) ListRecent(ctx context.Context, limit int) ([]*ExtractJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args := r.selectJobs().OrderBy(entsql.Desc(colStartedAt)).Limit(limit).Query()
	jobs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "list extract jobs", errors.Join(common.ErrDatabase, err))
	}
	return jobs, nil
}

func (r *extractJobRepo) query(ctx context.Context, query string, args []any) ([]*ExtractJob, error) {
	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ExtractJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*ExtractJob, error) {
	var (
		job                   ExtractJob
		mode, status          string
		started, finished     nullTime
		errMsg, meta, resJSON sql.NullString
	)
	err := s.Scan(&job.ID, &mode, &status, &started, &finished, &job.ByteSize, &job.PageCount,
		&job.UnitsTotal, &job.UnitsFailed, &job.Questions, &job.Lessons, &job.NeedsReview,
		&errMsg, &meta, &resJSON)
	if err != nil {
		return nil, err
	}
	job.Mode = constants.Mode(mode)
	job.Status = constants.JobStatus(status)
	job.StartedAt = started.Time
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	job.ErrorMessage = errMsg.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if resJSON.Valid && resJSON.String != "" {
		var res extract.ExtractionResult
		if err := json.Unmarshal([]byte(resJSON.String), &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &res
	}
	return &job, nil
}

func marshalNullable(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
