package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := New(NotFound, "symbol missing")
	if got := e.Error(); got != "[NOT_FOUND] symbol missing" {
		t.Errorf("Error() = %q", got)
	}

	cause := stderrors.New("disk on fire")
	wrapped := Wrap(IO, "read failed", cause)
	if !strings.Contains(wrapped.Error(), "disk on fire") {
		t.Errorf("Error() = %q, cause missing", wrapped.Error())
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("Unwrap chain broken")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Error("KindOf(nil) should be empty")
	}
	if KindOf(New(InvalidQuery, "x")) != InvalidQuery {
		t.Error("KindOf lost the kind")
	}
	if KindOf(stderrors.New("plain")) != Internal {
		t.Error("foreign errors should map to Internal")
	}
}

func TestIsKind(t *testing.T) {
	e := Newf(InvalidPattern, "bad regex %q", "[")
	if !IsKind(e, InvalidPattern) {
		t.Error("IsKind missed its own kind")
	}
	if IsKind(e, NotFound) {
		t.Error("IsKind matched the wrong kind")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{New(Cancelled, "cancelled"), 2},
		{New(NotFound, "x"), 1},
		{stderrors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWithDetails(t *testing.T) {
	e := New(InvalidQuery, "ambiguous").WithDetails(map[string]int{"matches": 7})
	if e.Details == nil {
		t.Error("details lost")
	}
}
