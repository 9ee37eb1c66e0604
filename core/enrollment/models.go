package enrollment

import (
	"context"
	"time"

	"github.com/kazilabs/mtihani/core"
)

// Enrollment statuses
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

var (
	// errors
	ErrNotEnrolled = core.NewForbiddenError("student is not enrolled in this class")
	ErrBlocked     = core.NewForbiddenError("enrollment is blocked")
)

// Enrollment binds a student to a class under a roll number.
// (classID, studentID) and (classID, rollNumber) are unique per class.
type Enrollment struct {
	ID         string    `json:"id"`
	ClassID    string    `json:"class_id"`
	StudentID  string    `json:"student_id"`
	RollNumber int       `json:"roll_number"`
	Status     string    `json:"status"`
	JoinedAt   time.Time `json:"joined_at"`
}

func (e Enrollment) IsActive() bool {
	return e.Status == StatusActive
}

// Resolution is the outcome of resolving a student within a class.
// The enrollment table is the source of truth; Reconciled is set when the
// directory had to heal a drifted redundant membership record on the way.
type Resolution struct {
	RollNumber int
	Status     string
	Reconciled bool
}

type (
	// Directory resolves class membership. It is the only sanctioned way for
	// the exam subsystem to turn a student identity into a roll number.
	Directory interface {
		// Resolve returns the roll-number binding for (classID, studentID).
		// A missing record is ErrNotEnrolled; a blocked record is returned
		// with its status so callers can report it precisely.
		Resolve(ctx context.Context, classID, studentID string) (Resolution, error)

		// ActiveRollNumbers returns the roll numbers of all active
		// enrollments in the class, in ascending order.
		ActiveRollNumbers(ctx context.Context, classID string) ([]int, error)
	}

	// Repository is the Directory plus the write side used by admin tooling
	// and fixtures. Class CRUD itself lives outside this subsystem.
	Repository interface {
		Directory

		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
	}
)
