package database

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
)

func TestAttemptRepository_QueryAllAttempts_rejectsUnknownOrderingFields(t *testing.T) {
	// unknown fields must be refused before any statement is built, so no
	// DB handle is needed here
	repo := NewAttemptRepository(nil)

	tests := []struct {
		name  string
		field string
	}{
		{name: "misspelled column", field: "startedat"},
		{name: "unrelated column", field: "violations"},
		{name: "injection payload", field: "started_at; DROP TABLE exam_attempt"},
		{name: "empty field", field: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.QueryAllAttempts(context.Background(), core.DBOrdering{Field: tt.field, Ascending: true})
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			if !ok {
				t.Fatalf("QueryAllAttempts() error = %v, want validation error", err)
			}
			if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "ordering" {
				t.Errorf("field errors = %+v, want one on ordering", vErr.Fields)
			}
		})
	}
}
