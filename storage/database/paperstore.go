package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/exam"
	"github.com/kazilabs/mtihani/core/paper"
)

// paperStore serves generated set content straight from the owning exam row.
// Content never leaves this package un-keyed: callers must hold a validated
// (examID, setID) pair.
type paperStore struct {
	db core.DBExecutor
}

var _ paper.Store = (*paperStore)(nil) // interface compliance check

func NewPaperStore(db core.DBExecutor) *paperStore {
	return &paperStore{db: db}
}

func (store paperStore) Get(ctx context.Context, examID, setID string) (exam.GeneratedSet, error) {
	var raw []byte
	err := store.db.GetContext(ctx, &raw, `SELECT generated_sets FROM exam WHERE id = $1`, examID)
	if err != nil {
		if err == sql.ErrNoRows {
			return exam.GeneratedSet{}, exam.ErrNotFound
		}
		return exam.GeneratedSet{}, errors.Wrap(err, "getting generated sets")
	}

	var sets []exam.GeneratedSet
	if err = json.Unmarshal(raw, &sets); err != nil {
		return exam.GeneratedSet{}, errors.Wrap(err, "decoding generated sets")
	}
	for _, set := range sets {
		if set.SetID == setID {
			return set, nil
		}
	}
	return exam.GeneratedSet{}, paper.ErrContentNotFound
}
