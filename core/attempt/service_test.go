package attempt_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/core/exam"
	"github.com/kazilabs/mtihani/storage/database/dummy"
	"github.com/kazilabs/mtihani/tests"
)

func newService(db *dummydb.DB, clock core.Clock) *attempt.Service {
	return attempt.NewService(
		dummydb.NewAttemptRepository(db),
		dummydb.NewExamRepository(db),
		dummydb.NewEnrollmentRepository(db),
		clock,
		testutil.NewTestLogger(),
	)
}

func TestService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("ineligible student is refused", func(t *testing.T) {
		db := openDB(t)
		clock := newClock()
		ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})

		_, err := newService(db, clock).Start(ctx, "stranger", ex.ID)
		if !core.IsForbidden(err) {
			t.Errorf("Start() error = %v, want forbidden", err)
		}
	})

	t.Run("first start flips a published exam to running", func(t *testing.T) {
		db := openDB(t)
		clock := newClock()
		ex := seedReadyExam(t, db, clock, 2, 60, []int{1, 2})

		att, err := newService(db, clock).Start(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		if att.Status != attempt.StatusStarted || att.AttemptNo != 1 {
			t.Errorf("got status=%s no=%d, want started no=1", att.Status, att.AttemptNo)
		}
		if !att.StartedAt.Equal(clock.T) {
			t.Errorf("startedAt = %v, want clock time %v", att.StartedAt, clock.T)
		}

		got, err := dummydb.NewExamRepository(db).GetExamByID(ctx, ex.ID)
		if err != nil {
			t.Fatalf("GetExamByID() failed: %v", err)
		}
		if got.Status != exam.StatusRunning {
			t.Errorf("exam status = %s, want running", got.Status)
		}
	})

	t.Run("second start resumes the active attempt", func(t *testing.T) {
		db := openDB(t)
		clock := newClock()
		ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})
		svc := newService(db, clock)

		first, err := svc.Start(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		clock.Advance(5 * time.Minute)
		second, err := svc.Start(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("resume created a new attempt %s, want %s", second.ID, first.ID)
		}

		history, err := svc.History(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		if len(history) != 1 {
			t.Errorf("history has %d attempts, want 1", len(history))
		}
	})

	t.Run("quota blocks a fresh start after submission", func(t *testing.T) {
		db := openDB(t)
		clock := newClock()
		ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})
		svc := newService(db, clock)

		att, err := svc.Start(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		clock.Advance(10 * time.Minute)
		if _, err := svc.Submit(ctx, studentID, att.ID, nil); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}

		_, err = svc.Start(ctx, studentID, ex.ID)
		if !core.IsForbidden(err) {
			t.Errorf("Start() error = %v, want forbidden attempts-exceeded", err)
		}
	})

	t.Run("concurrent starts collapse to one attempt", func(t *testing.T) {
		db := openDB(t)
		clock := newClock()
		ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})
		svc := newService(db, clock)

		const racers = 16
		ids := make([]string, racers)
		errs := make([]error, racers)
		var wg sync.WaitGroup
		wg.Add(racers)
		for i := 0; i < racers; i++ {
			go func(i int) {
				defer wg.Done()
				att, err := svc.Start(ctx, studentID, ex.ID)
				ids[i], errs[i] = att.ID, err
			}(i)
		}
		wg.Wait()

		for i := 0; i < racers; i++ {
			if errs[i] != nil {
				t.Fatalf("Start() racer %d failed: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Errorf("racer %d got attempt %s, want %s", i, ids[i], ids[0])
			}
		}

		history, err := svc.History(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("history has %d attempts, want 1", len(history))
		}
		if history[0].Status != attempt.StatusStarted {
			t.Errorf("status = %s, want started", history[0].Status)
		}
	})

	t.Run("a second attempt is numbered after the first", func(t *testing.T) {
		db := openDB(t)
		clock := newClock()
		ex := seedReadyExam(t, db, clock, 2, 60, []int{1, 2})
		svc := newService(db, clock)

		att, err := svc.Start(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		clock.Advance(10 * time.Minute)
		if _, err := svc.Submit(ctx, studentID, att.ID, nil); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}

		again, err := svc.Start(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		if again.AttemptNo != 2 {
			t.Errorf("attempt no = %d, want 2", again.AttemptNo)
		}
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	clock := newClock()
	ex := seedReadyExam(t, db, clock, 2, 60, []int{1, 2})
	svc := newService(db, clock)

	att, err := svc.Start(ctx, studentID, ex.ID)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	t.Run("only the owner can submit", func(t *testing.T) {
		if _, err := svc.Submit(ctx, "student2", att.ID, nil); errors.Cause(err) != attempt.ErrNotOwner {
			t.Errorf("Submit() error = %v, want ErrNotOwner", err)
		}
	})

	t.Run("unknown attempt", func(t *testing.T) {
		if _, err := svc.Submit(ctx, studentID, "nope", nil); !core.IsNotFound(err) {
			t.Errorf("Submit() error = %v, want not-found", err)
		}
	})

	t.Run("submission closes the attempt and stamps answers", func(t *testing.T) {
		clock.Advance(30 * time.Minute)
		answers := []attempt.Answer{{QuestionID: "q1", Answer: "4"}}
		got, err := svc.Submit(ctx, studentID, att.ID, answers)
		if err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
		if got.Status != attempt.StatusSubmitted {
			t.Errorf("status = %s, want submitted", got.Status)
		}
		if !got.SubmittedAt.Equal(clock.T) {
			t.Errorf("submittedAt = %v, want %v", got.SubmittedAt, clock.T)
		}
		if len(got.Answers) != 1 || !got.Answers[0].At.Equal(clock.T) {
			t.Errorf("answers not stamped: %+v", got.Answers)
		}
	})

	t.Run("double submission conflicts", func(t *testing.T) {
		if _, err := svc.Submit(ctx, studentID, att.ID, nil); errors.Cause(err) != attempt.ErrAlreadyClosed {
			t.Errorf("Submit() error = %v, want ErrAlreadyClosed", err)
		}
	})

	t.Run("an expired session cannot be submitted", func(t *testing.T) {
		late, err := svc.Start(ctx, studentID, ex.ID)
		if err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		clock.Advance(61 * time.Minute)
		_, err = svc.Submit(ctx, studentID, late.ID, nil)
		if errors.Cause(err) != attempt.ErrAttemptExpired {
			t.Errorf("Submit() error = %v, want ErrAttemptExpired", err)
		}
		if !core.IsExpired(err) {
			t.Errorf("error kind = %v, want expired", core.KindOf(err))
		}
	})
}

func TestService_RecordViolation(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	clock := newClock()
	ex := seedReadyExam(t, db, clock, 1, 60, []int{1, 2})
	svc := newService(db, clock)

	att, err := svc.Start(ctx, studentID, ex.ID)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	t.Run("rejects unknown violation types", func(t *testing.T) {
		_, err := svc.RecordViolation(ctx, studentID, att.ID, attempt.ViolationType("ate-my-homework"))
		vErr, ok := errors.Cause(err).(*core.ValidationError)
		if !ok {
			t.Fatalf("RecordViolation() error = %v, want validation error", err)
		}
		if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "type" {
			t.Fatalf("field errors = %+v, want one on type", vErr.Fields)
		}
		for _, legal := range attempt.AllViolationTypes {
			if !strings.Contains(vErr.Fields[0].Error, string(legal)) {
				t.Errorf("field error %q does not list %q", vErr.Fields[0].Error, legal)
			}
		}
	})

	t.Run("only the owner can report", func(t *testing.T) {
		_, err := svc.RecordViolation(ctx, "student2", att.ID, attempt.ViolationTabSwitch)
		if errors.Cause(err) != attempt.ErrNotOwner {
			t.Errorf("RecordViolation() error = %v, want ErrNotOwner", err)
		}
	})

	t.Run("appends to the log without touching status", func(t *testing.T) {
		clock.Advance(time.Minute)
		got, err := svc.RecordViolation(ctx, studentID, att.ID, attempt.ViolationTabSwitch)
		if err != nil {
			t.Fatalf("RecordViolation() failed: %v", err)
		}
		clock.Advance(time.Minute)
		got, err = svc.RecordViolation(ctx, studentID, att.ID, attempt.ViolationCopy)
		if err != nil {
			t.Fatalf("RecordViolation() failed: %v", err)
		}
		if got.Status != attempt.StatusStarted {
			t.Errorf("status = %s, want started", got.Status)
		}
		if len(got.Violations) != 2 {
			t.Fatalf("got %d violations, want 2", len(got.Violations))
		}
		if got.Violations[0].Type != attempt.ViolationTabSwitch || got.Violations[1].Type != attempt.ViolationCopy {
			t.Errorf("violation order wrong: %+v", got.Violations)
		}
	})

	t.Run("closed attempts take no more reports", func(t *testing.T) {
		if _, err := svc.Submit(ctx, studentID, att.ID, nil); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
		_, err := svc.RecordViolation(ctx, studentID, att.ID, attempt.ViolationPaste)
		if errors.Cause(err) != attempt.ErrAlreadyClosed {
			t.Errorf("RecordViolation() error = %v, want ErrAlreadyClosed", err)
		}
	})
}

func TestService_Heartbeat(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	clock := newClock()
	ex := seedReadyExam(t, db, clock, 2, 60, []int{1, 2})
	svc := newService(db, clock)

	att, err := svc.Start(ctx, studentID, ex.ID)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	t.Run("bumps lastActiveAt while the session is live", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		got, err := svc.Heartbeat(ctx, studentID, att.ID)
		if err != nil {
			t.Fatalf("Heartbeat() failed: %v", err)
		}
		if got.Status != attempt.StatusStarted {
			t.Errorf("status = %s, want started", got.Status)
		}
		if !got.LastActiveAt.Equal(clock.T) {
			t.Errorf("lastActiveAt = %v, want %v", got.LastActiveAt, clock.T)
		}
	})

	t.Run("auto-submits an expired session", func(t *testing.T) {
		clock.Advance(70 * time.Minute)
		got, err := svc.Heartbeat(ctx, studentID, att.ID)
		if err != nil {
			t.Fatalf("Heartbeat() failed: %v", err)
		}
		if got.Status != attempt.StatusAutoSubmitted {
			t.Errorf("status = %s, want auto-submitted", got.Status)
		}
		if !got.SubmittedAt.Equal(clock.T) {
			t.Errorf("submittedAt = %v, want %v", got.SubmittedAt, clock.T)
		}
	})

	t.Run("closed attempts refuse heartbeats", func(t *testing.T) {
		_, err := svc.Heartbeat(ctx, studentID, att.ID)
		if errors.Cause(err) != attempt.ErrAlreadyClosed {
			t.Errorf("Heartbeat() error = %v, want ErrAlreadyClosed", err)
		}
	})
}
