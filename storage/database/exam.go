package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/exam"
)

// examRow mirrors the exam table; jsonb columns travel as raw bytes and are
// (un)packed at the boundary.
type examRow struct {
	ID               string    `db:"id"`
	ClassID          string    `db:"class_id"`
	CreatedBy        string    `db:"created_by"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	Status           string    `db:"status"`
	GenerationStatus string    `db:"generation_status"`
	StartTime        null.Time `db:"start_time"`
	EndTime          null.Time `db:"end_time"`
	DurationMinutes  int       `db:"duration_minutes"`
	AttemptsAllowed  int       `db:"attempts_allowed"`
	NumberOfSets     int       `db:"number_of_sets"`
	Locked           bool      `db:"locked_after_generation"`
	SetMap           []byte    `db:"set_map"`
	StudentPapers    []byte    `db:"student_papers"`
	GeneratedSets    []byte    `db:"generated_sets"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type examRepository struct {
	db core.DBExecutor
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db core.DBExecutor) *examRepository {
	return &examRepository{db: db}
}

func (repo examRepository) pack(ex exam.Exam) (examRow, error) {
	setMap, err := json.Marshal(ex.SetMap)
	if err != nil {
		return examRow{}, errors.Wrap(err, "encoding set map")
	}
	papers, err := json.Marshal(ex.StudentPapers)
	if err != nil {
		return examRow{}, errors.Wrap(err, "encoding student papers")
	}
	sets, err := json.Marshal(ex.GeneratedSets)
	if err != nil {
		return examRow{}, errors.Wrap(err, "encoding generated sets")
	}
	return examRow{
		ID:               ex.ID,
		ClassID:          ex.ClassID,
		CreatedBy:        ex.CreatedBy,
		Title:            ex.Title,
		Description:      ex.Description,
		Status:           ex.Status,
		GenerationStatus: ex.GenerationStatus,
		StartTime:        null.NewTime(ex.StartTime.UTC(), !ex.StartTime.IsZero()),
		EndTime:          null.NewTime(ex.EndTime.UTC(), !ex.EndTime.IsZero()),
		DurationMinutes:  ex.DurationMinutes,
		AttemptsAllowed:  ex.AttemptsAllowed,
		NumberOfSets:     ex.NumberOfSets,
		Locked:           ex.Locked,
		SetMap:           setMap,
		StudentPapers:    papers,
		GeneratedSets:    sets,
		CreatedAt:        ex.CreatedAt.UTC(),
		UpdatedAt:        ex.UpdatedAt.UTC(),
	}, nil
}

func (repo examRepository) unpack(row examRow) (exam.Exam, error) {
	ex := exam.Exam{
		ID:               row.ID,
		ClassID:          row.ClassID,
		CreatedBy:        row.CreatedBy,
		Title:            row.Title,
		Description:      row.Description,
		Status:           row.Status,
		GenerationStatus: row.GenerationStatus,
		StartTime:        row.StartTime.Time,
		EndTime:          row.EndTime.Time,
		DurationMinutes:  row.DurationMinutes,
		AttemptsAllowed:  row.AttemptsAllowed,
		NumberOfSets:     row.NumberOfSets,
		Locked:           row.Locked,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if err := json.Unmarshal(row.SetMap, &ex.SetMap); err != nil {
		return exam.Exam{}, errors.Wrap(err, "decoding set map")
	}
	if err := json.Unmarshal(row.StudentPapers, &ex.StudentPapers); err != nil {
		return exam.Exam{}, errors.Wrap(err, "decoding student papers")
	}
	if err := json.Unmarshal(row.GeneratedSets, &ex.GeneratedSets); err != nil {
		return exam.Exam{}, errors.Wrap(err, "decoding generated sets")
	}
	return ex, nil
}

// trapNoRowsErr maps psql "no rows" err to exam.ErrNotFound
func (repo examRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return exam.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo examRepository) get(ctx context.Context, id string) (exam.Exam, error) {
	var row examRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM exam WHERE id = $1`, id)
	if err != nil {
		return exam.Exam{}, repo.trapNoRowsErr(err, "getting exam")
	}
	return repo.unpack(row)
}

func (repo examRepository) GetExamByID(ctx context.Context, id string) (exam.Exam, error) {
	return repo.get(ctx, id)
}

func (repo examRepository) CreateExam(ctx context.Context, ex exam.Exam) (exam.Exam, error) {
	ex.ID = uuid.New().String()
	row, err := repo.pack(ex)
	if err != nil {
		return exam.Exam{}, err
	}
	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO exam (
			id, class_id, created_by, title, description, status, generation_status,
			start_time, end_time, duration_minutes, attempts_allowed, number_of_sets,
			locked_after_generation, set_map, student_papers, generated_sets,
			created_at, updated_at
		) VALUES (
			:id, :class_id, :created_by, :title, :description, :status, :generation_status,
			:start_time, :end_time, :duration_minutes, :attempts_allowed, :number_of_sets,
			:locked_after_generation, :set_map, :student_papers, :generated_sets,
			:created_at, :updated_at
		)`, row)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}
	return repo.get(ctx, ex.ID)
}

// SaveAssignment flips generation state and writes the set map in one guarded
// statement; under concurrent generation exactly one caller's UPDATE matches.
func (repo examRepository) SaveAssignment(ctx context.Context, examID string, setMap []exam.SetAssignment) (exam.Exam, error) {
	enc, err := json.Marshal(setMap)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "encoding set map")
	}
	res, err := repo.db.ExecContext(ctx, `
		UPDATE exam
		SET set_map = $2,
		    generation_status = $3,
		    locked_after_generation = TRUE,
		    updated_at = now()
		WHERE id = $1
		  AND generation_status IN ($4, $5)
		  AND locked_after_generation = FALSE`,
		examID, enc, exam.GenerationGenerated, exam.GenerationNone, exam.GenerationPreparing)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "saving set assignment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "saving set assignment")
	}
	if n == 0 {
		// either the exam is gone or another generation won the race
		if _, err = repo.get(ctx, examID); err != nil {
			return exam.Exam{}, err
		}
		return exam.Exam{}, exam.ErrAlreadyGenerated
	}
	return repo.get(ctx, examID)
}

func (repo examRepository) SaveStudentPapers(ctx context.Context, examID string, papers []exam.StudentPaper) (exam.Exam, error) {
	enc, err := json.Marshal(papers)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "encoding student papers")
	}
	res, err := repo.db.ExecContext(ctx, `
		UPDATE exam
		SET student_papers = $2,
		    updated_at = now()
		WHERE id = $1
		  AND generation_status = $3
		  AND locked_after_generation = TRUE`,
		examID, enc, exam.GenerationGenerated)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "saving student papers")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "saving student papers")
	}
	if n == 0 {
		if _, err = repo.get(ctx, examID); err != nil {
			return exam.Exam{}, err
		}
		return exam.Exam{}, exam.ErrNotGenerated
	}
	return repo.get(ctx, examID)
}

// ResetAssignment clears the whole generated state in one statement so no
// reader ever observes a half-cleared exam; blocked once published or later.
func (repo examRepository) ResetAssignment(ctx context.Context, examID string) (exam.Exam, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE exam
		SET set_map = '[]',
		    student_papers = '[]',
		    generated_sets = '[]',
		    generation_status = $2,
		    locked_after_generation = FALSE,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3`,
		examID, exam.GenerationNone, exam.StatusDraft)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "resetting set assignment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "resetting set assignment")
	}
	if n == 0 {
		if _, err = repo.get(ctx, examID); err != nil {
			return exam.Exam{}, err
		}
		return exam.Exam{}, exam.ErrResetBlocked
	}
	return repo.get(ctx, examID)
}

func (repo examRepository) MarkRunning(ctx context.Context, examID string) error {
	// a no-op when another first attempt already flipped it
	_, err := repo.db.ExecContext(ctx, `
		UPDATE exam
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		examID, exam.StatusRunning, exam.StatusPublished)
	return errors.Wrap(err, "marking exam running")
}
