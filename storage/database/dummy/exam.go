package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/kazilabs/mtihani/core/exam"
)

type examRepository struct {
	db *examTable
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) *examRepository {
	return &examRepository{db: db.exam}
}

func (repo *examRepository) GetExamByID(ctx context.Context, id string) (exam.Exam, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ex, ok := repo.db.table[id]; ok {
		return *ex, nil
	}
	return exam.Exam{}, exam.ErrNotFound
}

func (repo *examRepository) CreateExam(ctx context.Context, ex exam.Exam) (exam.Exam, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ex.ID = uuid.New().String()
	repo.db.table[ex.ID] = &ex
	return ex, nil
}

func (repo *examRepository) SaveAssignment(ctx context.Context, examID string, setMap []exam.SetAssignment) (exam.Exam, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ex, ok := repo.db.table[examID]
	if !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	// the guarded-update semantics: only one generation ever wins
	if ex.Locked || ex.GenerationStatus == exam.GenerationGenerated {
		return exam.Exam{}, exam.ErrAlreadyGenerated
	}
	ex.SetMap = setMap
	ex.GenerationStatus = exam.GenerationGenerated
	ex.Locked = true
	return *ex, nil
}

func (repo *examRepository) SaveStudentPapers(ctx context.Context, examID string, papers []exam.StudentPaper) (exam.Exam, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ex, ok := repo.db.table[examID]
	if !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	if !ex.IsGenerated() {
		return exam.Exam{}, exam.ErrNotGenerated
	}
	ex.StudentPapers = papers
	return *ex, nil
}

func (repo *examRepository) ResetAssignment(ctx context.Context, examID string) (exam.Exam, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ex, ok := repo.db.table[examID]
	if !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	if ex.Status != exam.StatusDraft {
		return exam.Exam{}, exam.ErrResetBlocked
	}
	ex.SetMap = nil
	ex.StudentPapers = nil
	ex.GeneratedSets = nil
	ex.GenerationStatus = exam.GenerationNone
	ex.Locked = false
	return *ex, nil
}

func (repo *examRepository) MarkRunning(ctx context.Context, examID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if ex, ok := repo.db.table[examID]; ok && ex.Status == exam.StatusPublished {
		ex.Status = exam.StatusRunning
	}
	return nil
}

// RebindPaper points roll's paper at setID regardless of the set map; a
// fixture helper for corruption scenarios.
func (repo *examRepository) RebindPaper(examID string, roll int, setID string) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if ex, ok := repo.db.table[examID]; ok {
		for i := range ex.StudentPapers {
			if ex.StudentPapers[i].RollNumber == roll {
				ex.StudentPapers[i].SetID = setID
			}
		}
	}
}

// WipeGeneratedSets drops the question content while leaving the set map and
// paper bindings intact; a fixture helper for content-loss scenarios.
func (repo *examRepository) WipeGeneratedSets(examID string) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if ex, ok := repo.db.table[examID]; ok {
		ex.GeneratedSets = nil
	}
}

// SetStatus is a fixture helper; exam CRUD proper lives outside this subsystem.
func (repo *examRepository) SetStatus(examID, status string) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if ex, ok := repo.db.table[examID]; ok {
		ex.Status = status
	}
}
