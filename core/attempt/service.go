package attempt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/enrollment"
	"github.com/kazilabs/mtihani/core/exam"
)

// Service is the attempt lifecycle manager: the only component that creates
// attempts or moves them through the state machine. The safety sweeper reuses
// the same repository transitions and can never bypass them.
type Service struct {
	repo   Repository
	exams  exam.Repository
	engine *Engine
	clock  core.Clock
	log    core.Logger
}

func NewService(
	repo Repository,
	exams exam.Repository,
	directory enrollment.Directory,
	clock core.Clock,
	log core.Logger,
) *Service {
	return &Service{
		repo:   repo,
		exams:  exams,
		engine: NewEngine(exams, directory, repo, clock),
		clock:  clock,
		log:    log,
	}
}

// CheckEligibility exposes the engine's read-only decision.
func (svc *Service) CheckEligibility(ctx context.Context, studentID, examID string) (Eligibility, error) {
	return svc.engine.Check(ctx, studentID, examID)
}

// Start begins a new attempt after a fresh eligibility pass, or resumes the
// existing started attempt. Duplicate creation is impossible: the repository
// enforces at most one started row per (exam, student) atomically, so two
// concurrent starts collapse onto the same attempt.
func (svc *Service) Start(ctx context.Context, studentID, examID string) (Attempt, error) {
	elig, err := svc.engine.Check(ctx, studentID, examID)
	if err != nil {
		return Attempt{}, err
	}
	if !elig.Eligible {
		return Attempt{}, elig.Err()
	}
	if elig.ActiveAttempt != nil {
		return *elig.ActiveAttempt, nil // idempotent resume
	}

	now := svc.clock.Now()
	att := Attempt{
		ID:           uuid.New().String(),
		ExamID:       examID,
		StudentID:    studentID,
		AttemptNo:    elig.AttemptCount + 1,
		Status:       StatusStarted,
		StartedAt:    now,
		LastActiveAt: now,
	}
	att, created, err := svc.repo.CreateAttempt(ctx, att)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "creating attempt")
	}
	if created && elig.Exam.Status == exam.StatusPublished {
		// first attempt flips a published exam to running
		if err := svc.exams.MarkRunning(ctx, examID); err != nil {
			svc.log.Warn(fmt.Sprintf("marking exam %s running", examID), err)
		}
	}
	return att, nil
}

// GetActive returns the student's started attempt for the exam, if any.
func (svc *Service) GetActive(ctx context.Context, studentID, examID string) (Attempt, error) {
	return svc.repo.GetActiveAttempt(ctx, examID, studentID)
}

// History lists the student's attempts for the exam in attempt order.
func (svc *Service) History(ctx context.Context, studentID, examID string) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, examID, studentID)
}

// ListAll lists every attempt; admin tooling only.
func (svc *Service) ListAll(ctx context.Context, ordering ...core.DBOrdering) ([]Attempt, error) {
	return svc.repo.QueryAllAttempts(ctx, ordering...)
}

// Submit closes a started attempt on the student's behalf. A session the
// server already considers expired cannot be submitted — closing it belongs
// to the auto-submission path.
func (svc *Service) Submit(ctx context.Context, callerID, attemptID string, answers []Answer) (Attempt, error) {
	att, ex, err := svc.getOwned(ctx, callerID, attemptID, "submit")
	if err != nil {
		return Attempt{}, err
	}
	if !att.IsActive() {
		return Attempt{}, ErrAlreadyClosed
	}
	now := svc.clock.Now()
	if att.ExpiredAt(ex, now) {
		return Attempt{}, ErrAttemptExpired
	}
	for i := range answers {
		if answers[i].At.IsZero() {
			answers[i].At = now
		}
	}
	return svc.repo.FinishAttempt(ctx, att.ID, StatusSubmitted, now, answers)
}

// RecordViolation appends a client-reported integrity event to a started
// attempt of a live exam. It never changes attempt status.
func (svc *Service) RecordViolation(ctx context.Context, callerID, attemptID string, vtype ViolationType) (Attempt, error) {
	if !vtype.Valid() {
		return Attempt{}, core.NewValidationError(
			errors.Errorf("invalid violation type %q", vtype),
			core.FieldError{Field: "type", Error: "must be one of: " + violationTypeList()},
		)
	}
	att, ex, err := svc.getOwned(ctx, callerID, attemptID, "record violation on")
	if err != nil {
		return Attempt{}, err
	}
	if !att.IsActive() {
		return Attempt{}, ErrAlreadyClosed
	}
	if !ex.IsAttemptable() {
		return Attempt{}, ErrExamNotLive
	}
	return svc.repo.AppendViolation(ctx, att.ID, Violation{Type: vtype, At: svc.clock.Now()})
}

// Heartbeat bumps lastActiveAt on a started attempt and opportunistically
// enforces expiry: an expired session is auto-submitted right here, the same
// transition the sweeper performs, so a polling client is self-limiting even
// without the background sweep.
func (svc *Service) Heartbeat(ctx context.Context, callerID, attemptID string) (Attempt, error) {
	att, ex, err := svc.getOwned(ctx, callerID, attemptID, "heartbeat")
	if err != nil {
		return Attempt{}, err
	}
	if !att.IsActive() {
		return Attempt{}, ErrAlreadyClosed
	}
	if !ex.IsAttemptable() {
		return Attempt{}, ErrExamNotLive
	}

	now := svc.clock.Now()
	if att.ExpiredAt(ex, now) {
		closed, err := svc.repo.FinishAttempt(ctx, att.ID, StatusAutoSubmitted, now, nil)
		if err != nil {
			if core.IsConflict(err) {
				// the sweeper got there first
				return svc.repo.GetAttemptByID(ctx, att.ID)
			}
			return Attempt{}, err
		}
		return closed, nil
	}

	if err := svc.repo.TouchAttempt(ctx, att.ID, now); err != nil {
		return Attempt{}, errors.Wrap(err, "touching attempt")
	}
	att.LastActiveAt = now
	return att, nil
}

// getOwned loads the attempt and its exam, enforcing caller ownership.
// Ownership violations are security events and get logged as such.
func (svc *Service) getOwned(ctx context.Context, callerID, attemptID, action string) (Attempt, exam.Exam, error) {
	att, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return Attempt{}, exam.Exam{}, err
	}
	if att.StudentID != callerID {
		svc.log.Error(fmt.Sprintf(
			"SECURITY: caller %s tried to %s attempt %s owned by %s",
			callerID, action, attemptID, att.StudentID))
		return Attempt{}, exam.Exam{}, ErrNotOwner
	}
	ex, err := svc.exams.GetExamByID(ctx, att.ExamID)
	if err != nil {
		return Attempt{}, exam.Exam{}, errors.Wrap(err, "loading attempt's exam")
	}
	return att, ex, nil
}
