package attempt

import (
	"context"

	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/enrollment"
	"github.com/kazilabs/mtihani/core/exam"
)

// Reason codes surfaced by the eligibility engine. The first failed check
// wins; ACTIVE_ATTEMPT_EXISTS and ELIGIBLE are the two passing outcomes.
type Reason string

const (
	ReasonEligible              Reason = "ELIGIBLE"
	ReasonActiveAttemptExists   Reason = "ACTIVE_ATTEMPT_EXISTS"
	ReasonExamNotFound          Reason = "EXAM_NOT_FOUND"
	ReasonExamNotAvailable      Reason = "EXAM_NOT_AVAILABLE"
	ReasonNotEnrolled           Reason = "NOT_ENROLLED"
	ReasonEnrollmentNotVerified Reason = "ENROLLMENT_NOT_VERIFIED"
	ReasonNoPaperGenerated      Reason = "NO_PAPER_GENERATED"
	ReasonExamNotStarted        Reason = "EXAM_NOT_STARTED"
	ReasonExamEnded             Reason = "EXAM_ENDED"
	ReasonAttemptsExceeded      Reason = "ATTEMPTS_EXCEEDED"
)

// reasonErrs maps each failing reason onto the error taxonomy so callers that
// need an error (e.g. Start) get the right kind without re-deriving it.
var reasonErrs = map[Reason]error{
	ReasonExamNotFound:          exam.ErrNotFound,
	ReasonExamNotAvailable:      core.NewForbiddenError("exam is not open for attempts"),
	ReasonNotEnrolled:           enrollment.ErrNotEnrolled,
	ReasonEnrollmentNotVerified: core.NewForbiddenError("your enrollment in this class is not verified"),
	ReasonNoPaperGenerated:      core.NewNotFoundError("no exam paper has been generated for you"),
	ReasonExamNotStarted:        core.NewForbiddenError("exam has not started yet"),
	ReasonExamEnded:             core.NewExpiredError("exam has ended"),
	ReasonAttemptsExceeded:      core.NewForbiddenError("you have used all attempts for this exam"),
}

// Eligibility is the outcome of a full check pass. Snapshot fields are only
// meaningful for the checks that ran before the first failure.
type Eligibility struct {
	Eligible     bool      `json:"eligible"`
	Reason       Reason    `json:"reason"`
	RollNumber   int       `json:"roll_number,omitempty"`
	AttemptCount int       `json:"attempt_count"`
	Exam         exam.Exam `json:"-"`

	// ActiveAttempt is set when a started attempt already exists; not a
	// failure — the lifecycle manager resumes it instead of duplicating.
	ActiveAttempt *Attempt `json:"active_attempt,omitempty"`
}

// Err returns the taxonomy error for a failed eligibility, nil otherwise.
func (e Eligibility) Err() error {
	if e.Eligible {
		return nil
	}
	if err, ok := reasonErrs[e.Reason]; ok {
		return err
	}
	return core.NewForbiddenError(string(e.Reason))
}

// Engine decides, server-side, whether a student may interact with an exam
// right now. Pure and read-only: deterministic given the store contents and
// the canonical clock.
type Engine struct {
	exams     exam.Repository
	directory enrollment.Directory
	attempts  Repository
	clock     core.Clock
}

func NewEngine(exams exam.Repository, directory enrollment.Directory, attempts Repository, clock core.Clock) *Engine {
	return &Engine{exams: exams, directory: directory, attempts: attempts, clock: clock}
}

// Check runs the ordered eligibility checks, short-circuiting on the first
// failure. The returned error is reserved for infrastructure faults; domain
// outcomes are always expressed through Eligibility.Reason.
func (eng *Engine) Check(ctx context.Context, studentID, examID string) (Eligibility, error) {
	// exam exists
	ex, err := eng.exams.GetExamByID(ctx, examID)
	if err != nil {
		if core.IsNotFound(err) {
			return Eligibility{Reason: ReasonExamNotFound}, nil
		}
		return Eligibility{}, errors.Wrap(err, "loading exam")
	}
	out := Eligibility{Exam: ex}

	// exam status allows attempts
	if !ex.IsAttemptable() {
		out.Reason = ReasonExamNotAvailable
		return out, nil
	}

	// student enrolled and active in the exam's class
	res, err := eng.directory.Resolve(ctx, ex.ClassID, studentID)
	if err != nil {
		if core.IsForbidden(err) {
			out.Reason = ReasonNotEnrolled
			return out, nil
		}
		return Eligibility{}, errors.Wrap(err, "resolving enrollment")
	}
	if res.Status != enrollment.StatusActive {
		out.Reason = ReasonEnrollmentNotVerified
		return out, nil
	}
	out.RollNumber = res.RollNumber

	// a paper exists for this student
	if _, ok := ex.AssignedSet(res.RollNumber); !ok {
		out.Reason = ReasonNoPaperGenerated
		return out, nil
	}
	if _, ok := ex.PaperFor(res.RollNumber); !ok {
		out.Reason = ReasonNoPaperGenerated
		return out, nil
	}

	// time window, against the canonical clock only
	now := eng.clock.Now()
	if !ex.StartTime.IsZero() && now.Before(ex.StartTime) {
		out.Reason = ReasonExamNotStarted
		return out, nil
	}
	if !ex.EndTime.IsZero() && now.After(ex.EndTime) {
		out.Reason = ReasonExamEnded
		return out, nil
	}

	// attempts quota: only finished attempts count against it
	count, err := eng.attempts.CountFinishedAttempts(ctx, examID, studentID)
	if err != nil {
		return Eligibility{}, errors.Wrap(err, "counting finished attempts")
	}
	out.AttemptCount = count
	if count >= ex.AttemptsAllowed {
		out.Reason = ReasonAttemptsExceeded
		return out, nil
	}

	// surface an existing active attempt so the caller resumes it
	out.Eligible = true
	out.Reason = ReasonEligible
	if active, err := eng.attempts.GetActiveAttempt(ctx, examID, studentID); err == nil {
		out.Reason = ReasonActiveAttemptExists
		out.ActiveAttempt = &active
	} else if !core.IsNotFound(err) {
		return Eligibility{}, errors.Wrap(err, "finding active attempt")
	}
	return out, nil
}
