package attempt_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/storage/database/dummy"
	"github.com/kazilabs/mtihani/tests"
)

func newSweeper(db *dummydb.DB, clock core.Clock) *attempt.Sweeper {
	return attempt.NewSweeper(
		dummydb.NewAttemptRepository(db),
		dummydb.NewExamRepository(db),
		clock,
		testutil.NewTestLogger(),
	)
}

func TestSweeper_autoSubmitsExpired(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	clock := newClock()
	ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})
	attempts := dummydb.NewAttemptRepository(db)

	expired := testutil.CreateAttempt(t, attempts, ex.ID, studentID, 1, attempt.StatusStarted, clock.T.Add(-2*time.Hour))
	live := testutil.CreateAttempt(t, attempts, ex.ID, "student2", 1, attempt.StatusStarted, clock.T.Add(-10*time.Minute))

	report, err := newSweeper(db, clock).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.AutoSubmitted != 1 {
		t.Errorf("auto-submitted %d attempts, want 1", report.AutoSubmitted)
	}

	got, err := attempts.GetAttemptByID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GetAttemptByID() failed: %v", err)
	}
	if got.Status != attempt.StatusAutoSubmitted {
		t.Errorf("expired attempt status = %s, want auto-submitted", got.Status)
	}
	if got.SubmittedAt.IsZero() {
		t.Error("expired attempt has no submittedAt")
	}
	firstClose := got.SubmittedAt

	untouched, err := attempts.GetAttemptByID(ctx, live.ID)
	if err != nil {
		t.Fatalf("GetAttemptByID() failed: %v", err)
	}
	if untouched.Status != attempt.StatusStarted {
		t.Errorf("live attempt status = %s, want started", untouched.Status)
	}

	// re-running is a no-op on already-closed rows
	clock.Advance(15 * time.Minute)
	report, err = newSweeper(db, clock).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.AutoSubmitted != 0 {
		t.Errorf("second sweep auto-submitted %d attempts, want 0", report.AutoSubmitted)
	}
	got, err = attempts.GetAttemptByID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GetAttemptByID() failed: %v", err)
	}
	if !got.SubmittedAt.Equal(firstClose) {
		t.Errorf("second sweep restamped submittedAt: %v, want %v", got.SubmittedAt, firstClose)
	}
}

func TestSweeper_collapsesDuplicateActives(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	clock := newClock()
	ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})
	attempts := dummydb.NewAttemptRepository(db)

	older := testutil.CreateAttempt(t, attempts, ex.ID, studentID, 1, attempt.StatusStarted, clock.T.Add(-20*time.Minute))
	// bypass the creation constraint to simulate a corrupted store
	newest := attempt.Attempt{
		ID:           uuid.New().String(),
		ExamID:       ex.ID,
		StudentID:    studentID,
		AttemptNo:    2,
		Status:       attempt.StatusStarted,
		StartedAt:    clock.T.Add(-5 * time.Minute),
		LastActiveAt: clock.T.Add(-5 * time.Minute),
	}
	attempts.ForcePut(newest)

	report, err := newSweeper(db, clock).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.DuplicatesClosed != 1 {
		t.Errorf("closed %d duplicates, want 1", report.DuplicatesClosed)
	}

	kept, err := attempts.GetAttemptByID(ctx, newest.ID)
	if err != nil {
		t.Fatalf("GetAttemptByID() failed: %v", err)
	}
	if kept.Status != attempt.StatusStarted {
		t.Errorf("most recent attempt status = %s, want started", kept.Status)
	}
	closed, err := attempts.GetAttemptByID(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetAttemptByID() failed: %v", err)
	}
	if closed.Status != attempt.StatusAutoSubmitted {
		t.Errorf("older duplicate status = %s, want auto-submitted", closed.Status)
	}
}

func TestSweeper_reportsAnomalies(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	clock := newClock()
	ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})
	attempts := dummydb.NewAttemptRepository(db)

	now := clock.T
	score, max := 12, 10
	rows := []attempt.Attempt{
		{ID: "orphan", ExamID: "gone", StudentID: studentID, AttemptNo: 1,
			Status: attempt.StatusSubmitted, StartedAt: now, SubmittedAt: now, LastActiveAt: now},
		{ID: "badstatus", ExamID: ex.ID, StudentID: "student2", AttemptNo: 1,
			Status: "grading", StartedAt: now, SubmittedAt: now, LastActiveAt: now},
		{ID: "badno", ExamID: ex.ID, StudentID: "student3", AttemptNo: 0,
			Status: attempt.StatusSubmitted, StartedAt: now, SubmittedAt: now, LastActiveAt: now},
		{ID: "noclose", ExamID: ex.ID, StudentID: "student4", AttemptNo: 1,
			Status: attempt.StatusSubmitted, StartedAt: now, LastActiveAt: now},
		{ID: "overmax", ExamID: ex.ID, StudentID: "student5", AttemptNo: 1,
			Status: attempt.StatusSubmitted, StartedAt: now, SubmittedAt: now, LastActiveAt: now,
			Score: &score, MaxMarks: &max},
	}
	for _, row := range rows {
		attempts.ForcePut(row)
	}

	report, err := newSweeper(db, clock).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	want := map[string]string{
		"orphan":    attempt.AnomalyOrphanAttempt,
		"badstatus": attempt.AnomalyInvalidStatus,
		"badno":     attempt.AnomalyBadAttemptNo,
		"noclose":   attempt.AnomalyMissingCloseTime,
		"overmax":   attempt.AnomalyScoreOverMax,
	}
	got := make(map[string]string, len(report.Anomalies))
	for _, a := range report.Anomalies {
		got[a.AttemptID] = a.Type
	}
	for id, atype := range want {
		if got[id] != atype {
			t.Errorf("attempt %s reported as %q, want %q", id, got[id], atype)
		}
	}
	if len(report.Anomalies) != len(want) {
		t.Errorf("got %d anomalies, want %d: %+v", len(report.Anomalies), len(want), report.Anomalies)
	}
}
