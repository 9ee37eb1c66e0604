package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
)

type attemptRepository struct {
	db    *attemptTable
	exams *examTable
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *DB) *attemptRepository {
	return &attemptRepository{db: db.attempt, exams: db.exam}
}

func (repo *attemptRepository) query() []attempt.Attempt {
	atts := make([]attempt.Attempt, 0, len(repo.db.table))
	for _, att := range repo.db.table {
		atts = append(atts, *att)
	}
	sort.Slice(atts, func(i, j int) bool { return atts[i].StartedAt.Before(atts[j].StartedAt) })
	return atts
}

func (repo *attemptRepository) findActive(examID, studentID string) *attempt.Attempt {
	for _, att := range repo.db.table {
		if att.ExamID == examID && att.StudentID == studentID && att.Status == attempt.StatusStarted {
			return att
		}
	}
	return nil
}

func (repo *attemptRepository) CreateAttempt(ctx context.Context, att attempt.Attempt) (attempt.Attempt, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// the partial-unique-index discipline: one started row per exam+student
	if existing := repo.findActive(att.ExamID, att.StudentID); existing != nil {
		return *existing, false, nil
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = att.StartedAt
	}
	if att.UpdatedAt.IsZero() {
		att.UpdatedAt = att.CreatedAt
	}
	repo.db.table[att.ID] = &att
	return att, true, nil
}

// ForcePut inserts att bypassing the active-attempt constraint; a fixture
// helper for sweep scenarios that must observe corrupt state.
func (repo *attemptRepository) ForcePut(att attempt.Attempt) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[att.ID] = &att
}

func (repo *attemptRepository) GetAttemptByID(ctx context.Context, id string) (attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if att, ok := repo.db.table[id]; ok {
		return *att, nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) GetActiveAttempt(ctx context.Context, examID, studentID string) (attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if att := repo.findActive(examID, studentID); att != nil {
		return *att, nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) QueryAttempts(ctx context.Context, examID, studentID string) ([]attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var atts []attempt.Attempt
	for _, att := range repo.query() {
		if att.ExamID == examID && att.StudentID == studentID {
			atts = append(atts, att)
		}
	}
	sort.Slice(atts, func(i, j int) bool { return atts[i].AttemptNo < atts[j].AttemptNo })
	return atts, nil
}

func (repo *attemptRepository) QueryAttemptsByStatus(ctx context.Context, status string) ([]attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var atts []attempt.Attempt
	for _, att := range repo.query() {
		if att.Status == status {
			atts = append(atts, att)
		}
	}
	return atts, nil
}

func (repo *attemptRepository) QueryAllAttempts(ctx context.Context, ordering ...core.DBOrdering) ([]attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	atts := repo.query()
	// startedAt ordering only; enough for tooling
	if len(ordering) > 0 && !ordering[0].Ascending {
		for i, j := 0, len(atts)-1; i < j; i, j = i+1, j-1 {
			atts[i], atts[j] = atts[j], atts[i]
		}
	}
	return atts, nil
}

func (repo *attemptRepository) CountFinishedAttempts(ctx context.Context, examID, studentID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, att := range repo.db.table {
		if att.ExamID == examID && att.StudentID == studentID &&
			(att.Status == attempt.StatusSubmitted || att.Status == attempt.StatusAutoSubmitted) {
			count++
		}
	}
	return count, nil
}

func (repo *attemptRepository) FinishAttempt(ctx context.Context, id, status string, submittedAt time.Time, answers []attempt.Answer) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att, ok := repo.db.table[id]
	if !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if att.Status != attempt.StatusStarted {
		return attempt.Attempt{}, attempt.ErrAlreadyClosed
	}
	att.Status = status
	att.SubmittedAt = submittedAt
	att.LastActiveAt = submittedAt
	att.UpdatedAt = submittedAt
	if answers != nil {
		att.Answers = answers
	}
	return *att, nil
}

func (repo *attemptRepository) AppendViolation(ctx context.Context, id string, v attempt.Violation) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att, ok := repo.db.table[id]
	if !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if att.Status != attempt.StatusStarted {
		return attempt.Attempt{}, attempt.ErrAlreadyClosed
	}
	att.Violations = append(att.Violations, v)
	att.LastActiveAt = v.At
	att.UpdatedAt = v.At
	return *att, nil
}

func (repo *attemptRepository) TouchAttempt(ctx context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if att, ok := repo.db.table[id]; ok && att.Status == attempt.StatusStarted {
		att.LastActiveAt = at
		att.UpdatedAt = at
	}
	return nil
}

func (repo *attemptRepository) AutoSubmitExpired(ctx context.Context, now time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.exams.RLock()
	defer repo.exams.RUnlock()

	var count int
	for _, att := range repo.db.table {
		if att.Status != attempt.StatusStarted {
			continue
		}
		ex, ok := repo.exams.table[att.ExamID]
		if !ok {
			continue
		}
		if att.ExpiredAt(*ex, now) {
			att.Status = attempt.StatusAutoSubmitted
			att.SubmittedAt = now
			att.LastActiveAt = now
			att.UpdatedAt = now
			count++
		}
	}
	return count, nil
}
