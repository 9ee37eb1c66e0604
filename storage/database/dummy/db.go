package dummydb

import (
	"sync"

	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/core/enrollment"
	"github.com/kazilabs/mtihani/core/exam"
)

type (
	DB struct {
		exam       *examTable
		attempt    *attemptTable
		enrollment *enrollmentTable
	}

	examTable struct {
		sync.RWMutex
		table map[string]*exam.Exam
	}

	attemptTable struct {
		sync.RWMutex
		table map[string]*attempt.Attempt
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]*enrollment.Enrollment // keyed by classID+"/"+studentID
		// redundant per-class rosters; deliberately allowed to drift so the
		// reconciliation path is exercisable
		rosters map[string]map[string]bool
	}
)

func Open() (*DB, error) {
	db := &DB{
		exam:    &examTable{table: make(map[string]*exam.Exam)},
		attempt: &attemptTable{table: make(map[string]*attempt.Attempt)},
		enrollment: &enrollmentTable{
			table:   make(map[string]*enrollment.Enrollment),
			rosters: make(map[string]map[string]bool),
		},
	}
	return db, nil
}
