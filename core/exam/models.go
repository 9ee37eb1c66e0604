package exam

import (
	"context"
	"time"

	"github.com/kazilabs/mtihani/core"
)

// Exam lifecycle statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusRunning   = "running"
	StatusClosed    = "closed"
	StatusEvaluated = "evaluated"
)

// Paper generation statuses; a parallel track to the exam status.
const (
	GenerationNone      = "none"
	GenerationPreparing = "preparing"
	GenerationGenerated = "generated"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("exam not found")
	ErrNotOwner         = core.NewForbiddenError("only the exam creator can do this")
	ErrAlreadyGenerated = core.NewConflictError("question sets already generated; reset the exam to regenerate")
	ErrNotGenerated     = core.NewConflictError("question sets have not been generated")
	ErrResetBlocked     = core.NewConflictError("cannot reset a published or later exam")
	ErrNoActiveStudents = core.NewValidationError(nil, core.FieldError{Field: "class", Error: "no active students enrolled in this class"})
)

// SetAssignment binds one question set to the roll numbers that will sit it.
type SetAssignment struct {
	SetID       string `json:"setId"`
	RollNumbers []int  `json:"assignedRollNumbers"`
}

// StudentPaper binds a roll number to its assigned set and paper artifact.
type StudentPaper struct {
	RollNumber  int       `json:"rollNumber"`
	SetID       string    `json:"setId"`
	ArtifactRef string    `json:"artifactRef"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Question content is opaque to the distribution/attempt machinery; only the
// paper resolver reads it, and it strips CorrectAnswer before returning.
type Question struct {
	Text          string   `json:"questionText"`
	Marks         int      `json:"marks"`
	Topic         string   `json:"topic,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

type GeneratedSet struct {
	SetID        string     `json:"setId"`
	Questions    []Question `json:"questions"`
	TotalMarks   int        `json:"totalMarks"`
	Instructions string     `json:"instructions,omitempty"`
	GeneratedAt  time.Time  `json:"generatedAt"`
}

type Exam struct {
	ID               string    `json:"id"`
	ClassID          string    `json:"class_id"`
	CreatedBy        string    `json:"created_by"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Status           string    `json:"status"`
	GenerationStatus string    `json:"generation_status"`
	StartTime        time.Time `json:"start_time"` // zero = no lower bound
	EndTime          time.Time `json:"end_time"`   // zero = no upper bound
	DurationMinutes  int       `json:"duration_minutes"`
	AttemptsAllowed  int       `json:"attempts_allowed"`
	NumberOfSets     int       `json:"number_of_sets"`
	Locked           bool      `json:"locked_after_generation"`

	SetMap        []SetAssignment `json:"set_map,omitempty"`
	StudentPapers []StudentPaper  `json:"student_papers,omitempty"`
	GeneratedSets []GeneratedSet  `json:"-"` // never serialized to clients; holds answer keys

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// IsAttemptable reports whether students may start or continue attempts.
func (e Exam) IsAttemptable() bool {
	return e.Status == StatusPublished || e.Status == StatusRunning
}

// IsReadable reports whether students may view their paper; closed exams stay
// readable, attemptable they are not.
func (e Exam) IsReadable() bool {
	return e.IsAttemptable() || e.Status == StatusClosed
}

func (e Exam) IsGenerated() bool {
	return e.GenerationStatus == GenerationGenerated && e.Locked
}

// AssignedSet returns the set bound to roll in the set map.
func (e Exam) AssignedSet(roll int) (string, bool) {
	for _, sa := range e.SetMap {
		for _, r := range sa.RollNumbers {
			if r == roll {
				return sa.SetID, true
			}
		}
	}
	return "", false
}

// PaperFor returns the student-paper entry bound to roll.
func (e Exam) PaperFor(roll int) (StudentPaper, bool) {
	for _, sp := range e.StudentPapers {
		if sp.RollNumber == roll {
			return sp, true
		}
	}
	return StudentPaper{}, false
}

type Repository interface {
	GetExamByID(ctx context.Context, id string) (Exam, error)
	CreateExam(ctx context.Context, ex Exam) (Exam, error)

	// SaveAssignment persists the set map and flips the generation status to
	// generated with the immutability lock set, in one guarded write: it
	// succeeds only while the status is still none/preparing and unlocked.
	// Concurrent callers resolve to one winner; losers get ErrAlreadyGenerated.
	SaveAssignment(ctx context.Context, examID string, setMap []SetAssignment) (Exam, error)

	// SaveStudentPapers persists the roll→set paper bindings; allowed only on
	// a generated, locked exam (ErrNotGenerated otherwise).
	SaveStudentPapers(ctx context.Context, examID string, papers []StudentPaper) (Exam, error)

	// ResetAssignment clears setMap, generatedSets and studentPapers together,
	// atomically with respect to readers; allowed only pre-publish
	// (ErrResetBlocked otherwise).
	ResetAssignment(ctx context.Context, examID string) (Exam, error)

	// MarkRunning transitions published → running; a no-op if the exam has
	// already moved on, so concurrent first attempts race harmlessly.
	MarkRunning(ctx context.Context, examID string) error
}
