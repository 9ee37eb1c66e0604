package attempt

import (
	"context"
	"strings"
	"time"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/exam"
)

// Attempt statuses. Absence of a row is the implicit NONE state; statuses
// only ever move forward (started → submitted/auto-submitted).
const (
	StatusStarted       = "started"
	StatusSubmitted     = "submitted"
	StatusAutoSubmitted = "auto-submitted"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusStarted, StatusSubmitted, StatusAutoSubmitted:
		return true
	}
	return false
}

// ViolationType is the closed set of client-reported integrity events.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "tab-switch"
	ViolationWindowBlur     ViolationType = "window-blur"
	ViolationFullscreenExit ViolationType = "fullscreen-exit"
	ViolationCopy           ViolationType = "copy"
	ViolationPaste          ViolationType = "paste"
	ViolationRightClick     ViolationType = "right-click"
)

var AllViolationTypes = []ViolationType{
	ViolationTabSwitch,
	ViolationWindowBlur,
	ViolationFullscreenExit,
	ViolationCopy,
	ViolationPaste,
	ViolationRightClick,
}

func (v ViolationType) Valid() bool {
	switch v {
	case ViolationTabSwitch, ViolationWindowBlur, ViolationFullscreenExit,
		ViolationCopy, ViolationPaste, ViolationRightClick:
		return true
	}
	return false
}

// violationTypeList renders the legal types for validation messages.
func violationTypeList() string {
	names := make([]string, len(AllViolationTypes))
	for i, v := range AllViolationTypes {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("attempt not found")
	ErrNotOwner       = core.NewForbiddenError("this attempt does not belong to you")
	ErrAlreadyClosed  = core.NewConflictError("attempt is no longer active")
	ErrAttemptExpired = core.NewExpiredError("attempt time has expired")
	ErrExamNotLive    = core.NewForbiddenError("exam is not live")
)

// Violation is one append-only integrity-log entry.
type Violation struct {
	Type ViolationType `json:"type"`
	At   time.Time     `json:"at"`
}

// Answer is a freeform answer record; its contents are opaque here.
type Answer struct {
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	At         time.Time `json:"at,omitempty"`
}

// Attempt is one timed session by one student against one exam.
// (ExamID, StudentID, AttemptNo) is unique; at most one started row may
// exist per (ExamID, StudentID) at any instant.
type Attempt struct {
	ID           string      `json:"id"`
	ExamID       string      `json:"exam_id"`
	StudentID    string      `json:"student_id"`
	AttemptNo    int         `json:"attempt_no"`
	Status       string      `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	SubmittedAt  time.Time   `json:"submitted_at,omitempty"` // zero until closed
	LastActiveAt time.Time   `json:"last_active_at"`
	Violations   []Violation `json:"violations,omitempty"`
	Answers      []Answer    `json:"answers,omitempty"`

	// evaluation outputs, filled in by grading outside this subsystem;
	// the sweeper only sanity-checks them.
	Score    *int `json:"score,omitempty"`
	MaxMarks *int `json:"max_marks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Attempt) IsActive() bool {
	return a.Status == StatusStarted
}

// ExpectedEnd is the server-computed expiry, independent of any client clock
// or connection.
func (a Attempt) ExpectedEnd(ex exam.Exam) time.Time {
	return a.StartedAt.Add(ex.Duration())
}

func (a Attempt) ExpiredAt(ex exam.Exam, now time.Time) bool {
	return now.After(a.ExpectedEnd(ex))
}

type Repository interface {
	// CreateAttempt inserts att unless a started attempt already exists for
	// (ExamID, StudentID); in that case it returns the existing attempt and
	// created=false. The check-and-insert must be atomic — under concurrent
	// starts exactly one row wins.
	CreateAttempt(ctx context.Context, att Attempt) (out Attempt, created bool, err error)

	GetAttemptByID(ctx context.Context, id string) (Attempt, error)
	GetActiveAttempt(ctx context.Context, examID, studentID string) (Attempt, error)
	QueryAttempts(ctx context.Context, examID, studentID string) ([]Attempt, error)
	QueryAttemptsByStatus(ctx context.Context, status string) ([]Attempt, error)
	QueryAllAttempts(ctx context.Context, ordering ...core.DBOrdering) ([]Attempt, error)

	// CountFinishedAttempts counts submitted + auto-submitted attempts; the
	// quota check and attempt numbering both key off it.
	CountFinishedAttempts(ctx context.Context, examID, studentID string) (int, error)

	// FinishAttempt transitions a started attempt to status (submitted or
	// auto-submitted) stamping submittedAt, guarded so closed attempts are
	// never reopened or restamped; ErrAlreadyClosed if the row was not
	// started anymore.
	FinishAttempt(ctx context.Context, id, status string, submittedAt time.Time, answers []Answer) (Attempt, error)

	// AppendViolation appends to the integrity log of a started attempt.
	AppendViolation(ctx context.Context, id string, v Violation) (Attempt, error)

	// TouchAttempt bumps lastActiveAt on a started attempt.
	TouchAttempt(ctx context.Context, id string, at time.Time) error

	// AutoSubmitExpired bulk-closes every started attempt whose
	// startedAt + exam duration < now, stamping submittedAt = now, and
	// returns how many rows it moved. Idempotent by construction.
	AutoSubmitExpired(ctx context.Context, now time.Time) (int, error)
}
