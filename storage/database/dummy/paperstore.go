package dummydb

import (
	"context"

	"github.com/kazilabs/mtihani/core/exam"
	"github.com/kazilabs/mtihani/core/paper"
)

type paperStore struct {
	db *examTable
}

var _ paper.Store = (*paperStore)(nil) // interface compliance check

func NewPaperStore(db *DB) *paperStore {
	return &paperStore{db: db.exam}
}

func (store *paperStore) Get(ctx context.Context, examID, setID string) (exam.GeneratedSet, error) {
	store.db.RLock()
	defer store.db.RUnlock()

	ex, ok := store.db.table[examID]
	if !ok {
		return exam.GeneratedSet{}, exam.ErrNotFound
	}
	for _, set := range ex.GeneratedSets {
		if set.SetID == setID {
			return set, nil
		}
	}
	return exam.GeneratedSet{}, paper.ErrContentNotFound
}
