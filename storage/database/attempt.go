package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
)

type attemptRow struct {
	ID           string    `db:"id"`
	ExamID       string    `db:"exam_id"`
	StudentID    string    `db:"student_id"`
	AttemptNo    int       `db:"attempt_no"`
	Status       string    `db:"status"`
	StartedAt    time.Time `db:"started_at"`
	SubmittedAt  null.Time `db:"submitted_at"`
	LastActiveAt time.Time `db:"last_active_at"`
	Violations   []byte    `db:"violations"`
	Answers      []byte    `db:"answers"`
	Score        null.Int  `db:"score"`
	MaxMarks     null.Int  `db:"max_marks"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type attemptRepository struct {
	db core.DBExecutor
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db core.DBExecutor) *attemptRepository {
	return &attemptRepository{db: db}
}

func (repo attemptRepository) pack(att attempt.Attempt) (attemptRow, error) {
	violations, err := json.Marshal(att.Violations)
	if err != nil {
		return attemptRow{}, errors.Wrap(err, "encoding violations")
	}
	answers, err := json.Marshal(att.Answers)
	if err != nil {
		return attemptRow{}, errors.Wrap(err, "encoding answers")
	}
	return attemptRow{
		ID:           att.ID,
		ExamID:       att.ExamID,
		StudentID:    att.StudentID,
		AttemptNo:    att.AttemptNo,
		Status:       att.Status,
		StartedAt:    att.StartedAt.UTC(),
		SubmittedAt:  null.NewTime(att.SubmittedAt.UTC(), !att.SubmittedAt.IsZero()),
		LastActiveAt: att.LastActiveAt.UTC(),
		Violations:   violations,
		Answers:      answers,
		Score:        null.IntFromPtr(att.Score),
		MaxMarks:     null.IntFromPtr(att.MaxMarks),
		CreatedAt:    att.CreatedAt.UTC(),
		UpdatedAt:    att.UpdatedAt.UTC(),
	}, nil
}

func (repo attemptRepository) unpack(row attemptRow) (attempt.Attempt, error) {
	att := attempt.Attempt{
		ID:           row.ID,
		ExamID:       row.ExamID,
		StudentID:    row.StudentID,
		AttemptNo:    row.AttemptNo,
		Status:       row.Status,
		StartedAt:    row.StartedAt,
		SubmittedAt:  row.SubmittedAt.Time,
		LastActiveAt: row.LastActiveAt,
		Score:        row.Score.Ptr(),
		MaxMarks:     row.MaxMarks.Ptr(),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Violations, &att.Violations); err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "decoding violations")
	}
	if err := json.Unmarshal(row.Answers, &att.Answers); err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "decoding answers")
	}
	return att, nil
}

func (repo attemptRepository) unpackSlice(rows []attemptRow) ([]attempt.Attempt, error) {
	atts := make([]attempt.Attempt, 0, len(rows))
	for _, row := range rows {
		att, err := repo.unpack(row)
		if err != nil {
			return nil, err
		}
		atts = append(atts, att)
	}
	return atts, nil
}

// trapNoRowsErr maps psql "no rows" err to attempt.ErrNotFound
func (repo attemptRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attempt.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo attemptRepository) get(ctx context.Context, id string) (attempt.Attempt, error) {
	var row attemptRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM exam_attempt WHERE id = $1`, id)
	if err != nil {
		return attempt.Attempt{}, repo.trapNoRowsErr(err, "getting attempt")
	}
	return repo.unpack(row)
}

// CreateAttempt relies on the partial unique index over started rows: the
// insert is ON CONFLICT DO NOTHING, so under concurrent starts exactly one
// row lands and every loser re-reads the winner.
func (repo attemptRepository) CreateAttempt(ctx context.Context, att attempt.Attempt) (attempt.Attempt, bool, error) {
	if att.CreatedAt.IsZero() {
		att.CreatedAt = att.StartedAt
	}
	if att.UpdatedAt.IsZero() {
		att.UpdatedAt = att.CreatedAt
	}
	row, err := repo.pack(att)
	if err != nil {
		return attempt.Attempt{}, false, err
	}
	res, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO exam_attempt (
			id, exam_id, student_id, attempt_no, status, started_at, submitted_at,
			last_active_at, violations, answers, score, max_marks, created_at, updated_at
		) VALUES (
			:id, :exam_id, :student_id, :attempt_no, :status, :started_at, :submitted_at,
			:last_active_at, :violations, :answers, :score, :max_marks, :created_at, :updated_at
		)
		ON CONFLICT DO NOTHING`, row)
	if err != nil {
		return attempt.Attempt{}, false, errors.Wrap(err, "inserting attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attempt.Attempt{}, false, errors.Wrap(err, "inserting attempt")
	}
	if n == 0 {
		existing, err := repo.GetActiveAttempt(ctx, att.ExamID, att.StudentID)
		if err != nil {
			return attempt.Attempt{}, false, err
		}
		return existing, false, nil
	}
	out, err := repo.get(ctx, att.ID)
	return out, true, err
}

func (repo attemptRepository) GetAttemptByID(ctx context.Context, id string) (attempt.Attempt, error) {
	return repo.get(ctx, id)
}

func (repo attemptRepository) GetActiveAttempt(ctx context.Context, examID, studentID string) (attempt.Attempt, error) {
	var row attemptRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM exam_attempt
		WHERE exam_id = $1 AND student_id = $2 AND status = $3`,
		examID, studentID, attempt.StatusStarted)
	if err != nil {
		return attempt.Attempt{}, repo.trapNoRowsErr(err, "getting active attempt")
	}
	return repo.unpack(row)
}

func (repo attemptRepository) QueryAttempts(ctx context.Context, examID, studentID string) ([]attempt.Attempt, error) {
	var rows []attemptRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM exam_attempt
		WHERE exam_id = $1 AND student_id = $2
		ORDER BY attempt_no`, examID, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	return repo.unpackSlice(rows)
}

func (repo attemptRepository) QueryAttemptsByStatus(ctx context.Context, status string) ([]attempt.Attempt, error) {
	var rows []attemptRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM exam_attempt WHERE status = $1 ORDER BY started_at`, status)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts by status")
	}
	return repo.unpackSlice(rows)
}

// attemptOrderColumns whitelists the columns callers may order by; ordering
// fields come from query params and are interpolated into the statement.
var attemptOrderColumns = map[string]bool{
	"exam_id":        true,
	"student_id":     true,
	"attempt_no":     true,
	"status":         true,
	"started_at":     true,
	"submitted_at":   true,
	"last_active_at": true,
	"score":          true,
	"created_at":     true,
	"updated_at":     true,
}

func (repo attemptRepository) QueryAllAttempts(ctx context.Context, ordering ...core.DBOrdering) ([]attempt.Attempt, error) {
	orderBy := "started_at ASC"
	if len(ordering) > 0 {
		clauses := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			if !attemptOrderColumns[ord.Field] {
				return nil, core.NewValidationError(
					errors.Errorf("cannot order attempts by %q", ord.Field),
					core.FieldError{Field: "ordering", Error: fmt.Sprintf("unknown field %q", ord.Field)},
				)
			}
			clauses = append(clauses, ord.String())
		}
		orderBy = strings.Join(clauses, ", ")
	}

	var rows []attemptRow
	err := repo.db.SelectContext(ctx, &rows, fmt.Sprintf(`SELECT * FROM exam_attempt ORDER BY %s`, orderBy))
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	return repo.unpackSlice(rows)
}

func (repo attemptRepository) CountFinishedAttempts(ctx context.Context, examID, studentID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `
		SELECT count(*) FROM exam_attempt
		WHERE exam_id = $1 AND student_id = $2 AND status IN ($3, $4)`,
		examID, studentID, attempt.StatusSubmitted, attempt.StatusAutoSubmitted)
	if err != nil {
		return 0, errors.Wrap(err, "counting finished attempts")
	}
	return count, nil
}

// FinishAttempt is guarded on the current status so a closed attempt can
// never be reopened or restamped, no matter how the callers race.
func (repo attemptRepository) FinishAttempt(ctx context.Context, id, status string, submittedAt time.Time, answers []attempt.Answer) (attempt.Attempt, error) {
	var (
		enc []byte
		err error
	)
	if answers != nil {
		enc, err = json.Marshal(answers)
		if err != nil {
			return attempt.Attempt{}, errors.Wrap(err, "encoding answers")
		}
	}
	res, err := repo.db.ExecContext(ctx, `
		UPDATE exam_attempt
		SET status = $2,
		    submitted_at = $3,
		    last_active_at = $3,
		    answers = COALESCE($4, answers),
		    updated_at = now()
		WHERE id = $1 AND status = $5`,
		id, status, submittedAt.UTC(), enc, attempt.StatusStarted)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "finishing attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "finishing attempt")
	}
	if n == 0 {
		if _, err = repo.get(ctx, id); err != nil {
			return attempt.Attempt{}, err
		}
		return attempt.Attempt{}, attempt.ErrAlreadyClosed
	}
	return repo.get(ctx, id)
}

func (repo attemptRepository) AppendViolation(ctx context.Context, id string, v attempt.Violation) (attempt.Attempt, error) {
	enc, err := json.Marshal(v)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "encoding violation")
	}
	res, err := repo.db.ExecContext(ctx, `
		UPDATE exam_attempt
		SET violations = violations || $2::jsonb,
		    last_active_at = $3,
		    updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, enc, v.At.UTC(), attempt.StatusStarted)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "appending violation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "appending violation")
	}
	if n == 0 {
		if _, err = repo.get(ctx, id); err != nil {
			return attempt.Attempt{}, err
		}
		return attempt.Attempt{}, attempt.ErrAlreadyClosed
	}
	return repo.get(ctx, id)
}

func (repo attemptRepository) TouchAttempt(ctx context.Context, id string, at time.Time) error {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE exam_attempt SET last_active_at = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, at.UTC(), attempt.StatusStarted)
	return errors.Wrap(err, "touching attempt")
}

// AutoSubmitExpired closes every started attempt whose window has elapsed,
// in one statement joined against the owning exam's duration. Idempotent:
// a second run matches nothing.
func (repo attemptRepository) AutoSubmitExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE exam_attempt a
		SET status = $2,
		    submitted_at = $1,
		    last_active_at = $1,
		    updated_at = now()
		FROM exam e
		WHERE a.exam_id = e.id
		  AND a.status = $3
		  AND a.started_at + make_interval(mins => e.duration_minutes) < $1`,
		now.UTC(), attempt.StatusAutoSubmitted, attempt.StatusStarted)
	if err != nil {
		return 0, errors.Wrap(err, "auto-submitting expired attempts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "auto-submitting expired attempts")
	}
	return int(n), nil
}
