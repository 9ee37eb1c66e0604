package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/enrollment"
)

type enrollmentRow struct {
	ID         string    `db:"id"`
	ClassID    string    `db:"class_id"`
	StudentID  string    `db:"student_id"`
	RollNumber int       `db:"roll_number"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type enrollmentRepository struct {
	db  core.DBExecutor
	log core.Logger
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db core.DBExecutor, log core.Logger) *enrollmentRepository {
	return &enrollmentRepository{db: db, log: log}
}

func (repo enrollmentRepository) unpack(row enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:         row.ID,
		ClassID:    row.ClassID,
		StudentID:  row.StudentID,
		RollNumber: row.RollNumber,
		Status:     row.Status,
		JoinedAt:   row.CreatedAt,
	}
}

// Resolve reads the enrollment table, then cross-checks the class roster's
// redundant member list. The enrollment row always wins; a roster missing
// the student is healed in place and the divergence reported to the caller.
func (repo enrollmentRepository) Resolve(ctx context.Context, classID, studentID string) (enrollment.Resolution, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM enrollment WHERE class_id = $1 AND student_id = $2`,
		classID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Resolution{}, enrollment.ErrNotEnrolled
		}
		return enrollment.Resolution{}, errors.Wrap(err, "resolving enrollment")
	}

	healed, err := repo.healRoster(ctx, classID, studentID)
	if err != nil {
		// roster drift must never take down an otherwise valid resolution
		repo.log.Error(errors.Wrap(err, "healing class roster").Error())
		healed = false
	}

	return enrollment.Resolution{
		RollNumber: row.RollNumber,
		Status:     row.Status,
		Reconciled: healed,
	}, nil
}

// healRoster appends studentID to class.member_ids when the redundant list
// drifted out of sync with the enrollment table; reports whether it did.
func (repo enrollmentRepository) healRoster(ctx context.Context, classID, studentID string) (bool, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE class
		SET member_ids = member_ids || to_jsonb($2::text),
		    updated_at = now()
		WHERE id = $1 AND NOT member_ids @> to_jsonb($2::text)`,
		classID, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (repo enrollmentRepository) ActiveRollNumbers(ctx context.Context, classID string) ([]int, error) {
	var rolls []int
	err := repo.db.SelectContext(ctx, &rolls, `
		SELECT roll_number FROM enrollment
		WHERE class_id = $1 AND status = $2
		ORDER BY roll_number`, classID, enrollment.StatusActive)
	if err != nil {
		return nil, errors.Wrap(err, "querying active roll numbers")
	}
	return rolls, nil
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	enr.ID = uuid.New().String()
	if enr.Status == "" {
		enr.Status = enrollment.StatusActive
	}
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO enrollment (id, class_id, student_id, roll_number, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		enr.ID, enr.ClassID, enr.StudentID, enr.RollNumber, enr.Status)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return repo.unpack(row), nil
}
