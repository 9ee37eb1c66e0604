package attempt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/exam"
)

// Anomaly types reported (never repaired) by the sweeper.
const (
	AnomalyOrphanAttempt    = "ORPHAN_ATTEMPT"
	AnomalyInvalidStatus    = "INVALID_STATUS"
	AnomalyBadAttemptNo     = "BAD_ATTEMPT_NO"
	AnomalyScoreOverMax     = "SCORE_OVER_MAX"
	AnomalyMissingCloseTime = "MISSING_CLOSE_TIME"
)

type Anomaly struct {
	Type      string `json:"type"`
	AttemptID string `json:"attempt_id"`
	Detail    string `json:"detail"`
}

type SweepReport struct {
	AutoSubmitted    int       `json:"auto_submitted"`
	DuplicatesClosed int       `json:"duplicates_closed"`
	Anomalies        []Anomaly `json:"anomalies,omitempty"`
}

// Sweeper is the out-of-band safety net. It is idempotent and safe to invoke
// zero or many times concurrently with live traffic: every transition it
// performs is one of the lifecycle manager's own guarded, forward-only
// repository operations. It reports corruption; it never deletes.
type Sweeper struct {
	repo  Repository
	exams exam.Repository
	clock core.Clock
	log   core.Logger
}

func NewSweeper(repo Repository, exams exam.Repository, clock core.Clock, log core.Logger) *Sweeper {
	return &Sweeper{repo: repo, exams: exams, clock: clock, log: log}
}

// Run performs one sweep pass. Per-step failures are logged and left for the
// next scheduled run; the report covers whatever did complete.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.clock.Now()

	// expired sessions: started + duration < now → auto-submitted.
	// the guarded bulk update cannot touch already-closed rows, so re-running
	// never restamps submittedAt.
	n, err := s.repo.AutoSubmitExpired(ctx, now)
	if err != nil {
		s.log.Error("sweeper: auto-submitting expired attempts", err)
	} else {
		report.AutoSubmitted = n
		if n > 0 {
			s.log.Info(fmt.Sprintf("sweeper: auto-submitted %d expired attempts", n))
		}
	}

	// duplicate started attempts per (exam, student): should be impossible
	// given the creation constraint, but must be detected. Keep the most
	// recently started, close the rest.
	closed, err := s.collapseDuplicates(ctx, now)
	if err != nil {
		s.log.Error("sweeper: collapsing duplicate active attempts", err)
	} else {
		report.DuplicatesClosed = closed
	}

	// structural anomalies: report only
	anomalies, err := s.findAnomalies(ctx)
	if err != nil {
		s.log.Error("sweeper: scanning for anomalies", err)
	} else {
		report.Anomalies = anomalies
		for _, a := range anomalies {
			s.log.Warn(fmt.Sprintf("sweeper: %s attempt=%s: %s", a.Type, a.AttemptID, a.Detail))
		}
	}
	return report, nil
}

func (s *Sweeper) collapseDuplicates(ctx context.Context, now time.Time) (int, error) {
	active, err := s.repo.QueryAttemptsByStatus(ctx, StatusStarted)
	if err != nil {
		return 0, errors.Wrap(err, "querying started attempts")
	}

	byPair := make(map[string][]Attempt)
	for _, att := range active {
		key := att.ExamID + "/" + att.StudentID
		byPair[key] = append(byPair[key], att)
	}

	var closed int
	for key, atts := range byPair {
		if len(atts) <= 1 {
			continue
		}
		sort.Slice(atts, func(i, j int) bool {
			return atts[i].StartedAt.After(atts[j].StartedAt)
		})
		s.log.Warn(fmt.Sprintf("sweeper: %d concurrent started attempts for %s; keeping %s",
			len(atts), key, atts[0].ID))
		for _, dup := range atts[1:] {
			if _, err := s.repo.FinishAttempt(ctx, dup.ID, StatusAutoSubmitted, now, nil); err != nil {
				if core.IsConflict(err) {
					continue // a concurrent sweep already closed it
				}
				return closed, errors.Wrapf(err, "closing duplicate attempt %s", dup.ID)
			}
			closed++
		}
	}
	return closed, nil
}

func (s *Sweeper) findAnomalies(ctx context.Context) ([]Anomaly, error) {
	all, err := s.repo.QueryAllAttempts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}

	var anomalies []Anomaly
	examSeen := make(map[string]bool) // examID → resolvable
	for _, att := range all {
		resolvable, cached := examSeen[att.ExamID]
		if !cached {
			_, err := s.exams.GetExamByID(ctx, att.ExamID)
			switch {
			case err == nil:
				resolvable = true
			case core.IsNotFound(err):
				resolvable = false
			default:
				return nil, errors.Wrapf(err, "resolving exam %s", att.ExamID)
			}
			examSeen[att.ExamID] = resolvable
		}
		if !resolvable {
			anomalies = append(anomalies, Anomaly{
				Type:      AnomalyOrphanAttempt,
				AttemptID: att.ID,
				Detail:    fmt.Sprintf("exam %s no longer resolvable", att.ExamID),
			})
		}

		if !ValidStatus(att.Status) {
			anomalies = append(anomalies, Anomaly{
				Type:      AnomalyInvalidStatus,
				AttemptID: att.ID,
				Detail:    fmt.Sprintf("unknown status %q", att.Status),
			})
		}
		if att.AttemptNo < 1 {
			anomalies = append(anomalies, Anomaly{
				Type:      AnomalyBadAttemptNo,
				AttemptID: att.ID,
				Detail:    fmt.Sprintf("attempt number %d", att.AttemptNo),
			})
		}
		if att.Status != StatusStarted && att.SubmittedAt.IsZero() {
			anomalies = append(anomalies, Anomaly{
				Type:      AnomalyMissingCloseTime,
				AttemptID: att.ID,
				Detail:    fmt.Sprintf("%s attempt without submittedAt", att.Status),
			})
		}
		if att.Score != nil && att.MaxMarks != nil && *att.Score > *att.MaxMarks {
			anomalies = append(anomalies, Anomaly{
				Type:      AnomalyScoreOverMax,
				AttemptID: att.ID,
				Detail:    fmt.Sprintf("score %d exceeds max marks %d", *att.Score, *att.MaxMarks),
			})
		}
	}
	return anomalies, nil
}
