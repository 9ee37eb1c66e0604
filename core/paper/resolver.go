package paper

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/enrollment"
	"github.com/kazilabs/mtihani/core/exam"
)

var (
	// errors
	ErrNotAvailable      = core.NewForbiddenError("exam is not yet available")
	ErrNoSetAssigned     = core.NewNotFoundError("no set assigned for your roll number")
	ErrPaperNotGenerated = core.NewNotFoundError("your paper has not been generated yet")
	ErrContentNotFound   = core.NewNotFoundError("set content not found")

	// ErrPaperUnavailable is the opaque caller-facing failure for integrity
	// faults; the corrupt details go to internal logs only, never to clients.
	ErrPaperUnavailable = core.NewIntegrityError(errors.New("paper temporarily unavailable"))
)

// Store supplies already-generated question content per set. Consumed, not
// implemented, by the resolver.
type Store interface {
	Get(ctx context.Context, examID, setID string) (exam.GeneratedSet, error)
}

// Question is the student-facing view of a question: the answer key is
// structurally absent, not merely blanked.
type Question struct {
	Number     int      `json:"number"`
	Text       string   `json:"text"`
	Marks      int      `json:"marks"`
	Topic      string   `json:"topic,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Options    []string `json:"options,omitempty"`
}

// Paper is one resolved, validated paper for one student.
type Paper struct {
	ExamID          string     `json:"exam_id"`
	ExamTitle       string     `json:"exam_title"`
	ExamStatus      string     `json:"exam_status"`
	DurationMinutes int        `json:"duration_minutes"`
	RollNumber      int        `json:"roll_number"`
	SetID           string     `json:"set_id"`
	ArtifactRef     string     `json:"artifact_ref,omitempty"`
	Instructions    string     `json:"instructions,omitempty"`
	TotalMarks      int        `json:"total_marks"`
	Questions       []Question `json:"questions"`
}

// Resolver turns (examID, studentID) into exactly one paper, re-validating
// every link in the assignment chain. It is the single sanctioned read path
// for exam content and never accepts a caller-supplied roll number or set ID.
//
// This is the trust boundary of the subsystem: every other component may be
// slightly wrong without leaking data; this one may not.
type Resolver struct {
	exams     exam.Repository
	directory enrollment.Directory
	store     Store
	log       core.Logger
}

func NewResolver(exams exam.Repository, directory enrollment.Directory, store Store, log core.Logger) *Resolver {
	return &Resolver{exams: exams, directory: directory, store: store, log: log}
}

// Resolve runs the security chain; each step is a hard gate.
func (r *Resolver) Resolve(ctx context.Context, examID, studentID string) (Paper, error) {
	// gate 1: exam exists and is readable by students
	ex, err := r.exams.GetExamByID(ctx, examID)
	if err != nil {
		return Paper{}, err
	}
	if !ex.IsReadable() {
		return Paper{}, ErrNotAvailable
	}

	// gate 2: enrollment resolution is the only source of the roll number
	res, err := r.directory.Resolve(ctx, ex.ClassID, studentID)
	if err != nil {
		return Paper{}, err
	}
	if res.Status != enrollment.StatusActive {
		return Paper{}, enrollment.ErrBlocked
	}
	if res.Reconciled {
		r.log.Warn(fmt.Sprintf(
			"membership list drift healed for student %s in class %s; enrollment table remains authoritative",
			studentID, ex.ClassID))
	}
	roll := res.RollNumber

	// gate 3: the set map must bind this roll
	assignedSetID, ok := ex.AssignedSet(roll)
	if !ok {
		return Paper{}, ErrNoSetAssigned
	}

	// gate 4: a paper entry must exist for this roll
	sp, ok := ex.PaperFor(roll)
	if !ok {
		return Paper{}, ErrPaperNotGenerated
	}

	// gate 5: the two bindings must agree; a mismatch is corruption and
	// neither candidate paper may be returned
	if sp.SetID != assignedSetID {
		r.log.Error(fmt.Sprintf(
			"INTEGRITY: exam %s roll %d: studentPapers says set %s, setMap says set %s",
			examID, roll, sp.SetID, assignedSetID))
		return Paper{}, ErrPaperUnavailable
	}

	// gate 6: fetch content by the validated pair only
	content, err := r.store.Get(ctx, examID, assignedSetID)
	if err != nil {
		return Paper{}, errors.Wrapf(err, "fetching content for exam %s set %s", examID, assignedSetID)
	}

	return Paper{
		ExamID:          ex.ID,
		ExamTitle:       ex.Title,
		ExamStatus:      ex.Status,
		DurationMinutes: ex.DurationMinutes,
		RollNumber:      roll,
		SetID:           assignedSetID,
		ArtifactRef:     sp.ArtifactRef,
		Instructions:    content.Instructions,
		TotalMarks:      content.TotalMarks,
		Questions:       strip(content.Questions),
	}, nil
}

// strip drops scoring-sensitive fields from the question content.
func strip(qs []exam.Question) []Question {
	out := make([]Question, 0, len(qs))
	for i, q := range qs {
		out = append(out, Question{
			Number:     i + 1,
			Text:       q.Text,
			Marks:      q.Marks,
			Topic:      q.Topic,
			Difficulty: q.Difficulty,
			Options:    q.Options,
			// CorrectAnswer deliberately omitted
		})
	}
	return out
}
