package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/kazilabs/mtihani/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db.enrollment}
}

func key(classID, studentID string) string {
	return classID + "/" + studentID
}

func (repo *enrollmentRepository) Resolve(ctx context.Context, classID, studentID string) (enrollment.Resolution, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr, ok := repo.db.table[key(classID, studentID)]
	if !ok {
		return enrollment.Resolution{}, enrollment.ErrNotEnrolled
	}

	// the enrollment record wins; a drifted roster is healed, not trusted
	healed := false
	if roster, ok := repo.db.rosters[classID]; ok && !roster[studentID] {
		roster[studentID] = true
		healed = true
	}

	return enrollment.Resolution{
		RollNumber: enr.RollNumber,
		Status:     enr.Status,
		Reconciled: healed,
	}, nil
}

func (repo *enrollmentRepository) ActiveRollNumbers(ctx context.Context, classID string) ([]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rolls []int
	for _, enr := range repo.db.table {
		if enr.ClassID == classID && enr.IsActive() {
			rolls = append(rolls, enr.RollNumber)
		}
	}
	sort.Ints(rolls)
	return rolls, nil
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr.ID = uuid.New().String()
	if enr.Status == "" {
		enr.Status = enrollment.StatusActive
	}
	repo.db.table[key(enr.ClassID, enr.StudentID)] = &enr

	roster, ok := repo.db.rosters[enr.ClassID]
	if !ok {
		roster = make(map[string]bool)
		repo.db.rosters[enr.ClassID] = roster
	}
	roster[enr.StudentID] = true
	return enr, nil
}

// DropFromRoster removes the student from the redundant class roster while
// leaving the enrollment record intact; a fixture helper for drift scenarios.
func (repo *enrollmentRepository) DropFromRoster(classID, studentID string) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if roster, ok := repo.db.rosters[classID]; ok {
		delete(roster, studentID)
	}
}
