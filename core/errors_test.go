package core

import (
	"testing"

	"github.com/pkg/errors"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "not found", err: NewNotFoundError("gone"), want: KindNotFound},
		{name: "forbidden", err: NewForbiddenError("no"), want: KindForbidden},
		{name: "conflict", err: NewConflictError("busy"), want: KindConflict},
		{name: "expired", err: NewExpiredError("late"), want: KindExpired},
		{name: "integrity", err: NewIntegrityError(errors.New("corrupt")), want: KindIntegrity},
		{name: "wrapped", err: errors.Wrap(NewConflictError("busy"), "saving"), want: KindConflict},
		{name: "plain error", err: errors.New("whatever"), want: ""},
		{name: "nil", err: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindPredicates(t *testing.T) {
	err := errors.Wrap(NewForbiddenError("no"), "checking")
	if !IsForbidden(err) {
		t.Error("IsForbidden() = false on a wrapped forbidden error")
	}
	if IsNotFound(err) || IsConflict(err) || IsExpired(err) || IsIntegrity(err) {
		t.Error("predicates matched the wrong kind")
	}
}

func TestIsShutdown(t *testing.T) {
	if !IsShutdown(errors.Wrap(NewShutdownError("going down"), "handling")) {
		t.Error("IsShutdown() = false on a wrapped shutdown error")
	}
	if IsShutdown(errors.New("whatever")) {
		t.Error("IsShutdown() = true on a plain error")
	}
}
