package exam

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/enrollment"
)

// Service owns all writes to an exam's set map, student papers and generation
// status. No other component mutates those fields; everything else goes
// through the repository's read side.
type Service struct {
	repo      Repository
	directory enrollment.Directory
	clock     core.Clock
	log       core.Logger
}

func NewService(repo Repository, directory enrollment.Directory, clock core.Clock, log core.Logger) *Service {
	return &Service{repo: repo, directory: directory, clock: clock, log: log}
}

func (svc *Service) GetByID(ctx context.Context, id string) (Exam, error) {
	return svc.repo.GetExamByID(ctx, id)
}

// GenerateAssignment partitions the class's active roll numbers across the
// exam's question sets and locks the result. Only the exam creator may run
// it, and only while the generation status is still none/preparing; the
// winning caller flips it to generated, any concurrent loser gets
// ErrAlreadyGenerated.
func (svc *Service) GenerateAssignment(ctx context.Context, examID, actorID string) (Exam, error) {
	ex, err := svc.repo.GetExamByID(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if ex.CreatedBy != actorID {
		return Exam{}, ErrNotOwner
	}
	if ex.GenerationStatus == GenerationGenerated {
		return Exam{}, ErrAlreadyGenerated
	}

	rolls, err := svc.directory.ActiveRollNumbers(ctx, ex.ClassID)
	if err != nil {
		return Exam{}, errors.Wrap(err, "listing active roll numbers")
	}
	if len(rolls) == 0 {
		return Exam{}, ErrNoActiveStudents
	}

	setMap := distribute(rolls, ex.NumberOfSets)

	// the repository re-checks the generation guard atomically; the read
	// above is only a fast path.
	ex, err = svc.repo.SaveAssignment(ctx, examID, setMap)
	if err != nil {
		return Exam{}, err
	}

	svc.log.Info(fmt.Sprintf("generated set assignment for exam %s: %d students across %d sets",
		examID, len(rolls), len(setMap)))
	return ex, nil
}

// BindStudentPapers derives the roll→set paper bindings from the locked set
// map. It refuses to run before generation so a partially generated exam can
// never acquire paper bindings.
func (svc *Service) BindStudentPapers(ctx context.Context, examID, actorID string) (Exam, error) {
	ex, err := svc.repo.GetExamByID(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if ex.CreatedBy != actorID {
		return Exam{}, ErrNotOwner
	}
	if !ex.IsGenerated() {
		return Exam{}, ErrNotGenerated
	}

	now := svc.clock.Now()
	papers := make([]StudentPaper, 0, len(ex.SetMap))
	for _, sa := range ex.SetMap {
		for _, roll := range sa.RollNumbers {
			papers = append(papers, StudentPaper{
				RollNumber:  roll,
				SetID:       sa.SetID,
				ArtifactRef: fmt.Sprintf("exams/%s/sets/%s/roll-%d.pdf", examID, sa.SetID, roll),
				GeneratedAt: now,
			})
		}
	}
	return svc.repo.SaveStudentPapers(ctx, examID, papers)
}

// ResetAssignment clears the set map, generated sets and student papers
// together. Blocked once the exam is published or later.
func (svc *Service) ResetAssignment(ctx context.Context, examID, actorID string) (Exam, error) {
	ex, err := svc.repo.GetExamByID(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if ex.CreatedBy != actorID {
		return Exam{}, ErrNotOwner
	}

	ex, err = svc.repo.ResetAssignment(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	svc.log.Info(fmt.Sprintf("reset set assignment for exam %s", examID))
	return ex, nil
}
