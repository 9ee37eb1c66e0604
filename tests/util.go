package testutil

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/core/enrollment"
	"github.com/kazilabs/mtihani/core/exam"
	"github.com/kazilabs/mtihani/services/logger"
)

// StudentID returns the fixture student identity enrolled under roll.
func StudentID(roll int) string {
	return fmt.Sprintf("student%d", roll)
}

// NewTestLogger returns a logger that swallows its output.
func NewTestLogger() core.Logger {
	return logsvc.NewStdLogger(log.New(ioutil.Discard, "", 0))
}

// CreateExam persists a published exam with n generated sets, each holding a
// couple of questions with answer keys.
func CreateExam(
	t *testing.T,
	repo exam.Repository,
	classID, createdBy string,
	numberOfSets, durationMinutes, attemptsAllowed int,
	status string,
	window ...time.Time,
) exam.Exam {
	t.Helper()

	ex := exam.Exam{
		ClassID:          classID,
		CreatedBy:        createdBy,
		Title:            "Term Exam",
		Status:           status,
		GenerationStatus: exam.GenerationNone,
		DurationMinutes:  durationMinutes,
		AttemptsAllowed:  attemptsAllowed,
		NumberOfSets:     numberOfSets,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if len(window) > 0 {
		ex.StartTime = window[0].UTC()
	}
	if len(window) > 1 {
		ex.EndTime = window[1].UTC()
	}
	for i := 0; i < numberOfSets; i++ {
		ex.GeneratedSets = append(ex.GeneratedSets, GeneratedSet(string(rune('A'+i))))
	}

	ex, err := repo.CreateExam(context.Background(), ex)
	if err != nil {
		t.Fatalf("CreateExam() failed: %v", err)
	}
	return ex
}

// GeneratedSet builds set content under the given label.
func GeneratedSet(setID string) exam.GeneratedSet {
	return exam.GeneratedSet{
		SetID: setID,
		Questions: []exam.Question{
			{Text: fmt.Sprintf("What is 2+2? (set %s)", setID), Marks: 5, CorrectAnswer: "4"},
			{Text: fmt.Sprintf("Name the capital of Kenya. (set %s)", setID), Marks: 5, CorrectAnswer: "Nairobi"},
		},
		TotalMarks:   10,
		Instructions: "Answer all questions.",
		GeneratedAt:  time.Now().UTC(),
	}
}

// CreateEnrollment persists an enrollment binding studentID to roll.
func CreateEnrollment(
	t *testing.T,
	repo enrollment.Repository,
	classID, studentID string,
	roll int,
	status string,
) enrollment.Enrollment {
	t.Helper()

	enr, err := repo.CreateEnrollment(context.Background(), enrollment.Enrollment{
		ClassID:    classID,
		StudentID:  studentID,
		RollNumber: roll,
		Status:     status,
		JoinedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}

// CreateAttempt persists an attempt directly, bypassing eligibility; for
// seeding sweep and history scenarios.
func CreateAttempt(
	t *testing.T,
	repo attempt.Repository,
	examID, studentID string,
	attemptNo int,
	status string,
	startedAt time.Time,
) attempt.Attempt {
	t.Helper()

	att := attempt.Attempt{
		ID:           uuid.New().String(),
		ExamID:       examID,
		StudentID:    studentID,
		AttemptNo:    attemptNo,
		Status:       attempt.StatusStarted,
		StartedAt:    startedAt.UTC(),
		LastActiveAt: startedAt.UTC(),
	}
	att, created, err := repo.CreateAttempt(context.Background(), att)
	if err != nil {
		t.Fatalf("CreateAttempt() failed: %v", err)
	}
	if status != attempt.StatusStarted {
		if !created {
			t.Fatalf("CreateAttempt() collided with an active attempt")
		}
		att, err = repo.FinishAttempt(context.Background(), att.ID, status, startedAt.Add(time.Minute).UTC(), nil)
		if err != nil {
			t.Fatalf("CreateAttempt() failed closing attempt: %v", err)
		}
	}
	return att
}
