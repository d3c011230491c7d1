package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := New(Validation, "SQL validation failed: Only SELECT queries are allowed")
	if err.Error() != "SQL validation failed: Only SELECT queries are allowed" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	wrapped := Wrap(Execution, "Query execution failed", errors.New("connection refused"))
	if wrapped.Error() != "Query execution failed: connection refused" {
		t.Errorf("Unexpected wrapped message: %s", wrapped.Error())
	}
}

func TestKindOf(t *testing.T) {
	inner := New(Summary, "completion failed")
	outer := fmt.Errorf("stage: %w", inner)

	if KindOf(outer) != Summary {
		t.Errorf("Expected kind %s, got %s", Summary, KindOf(outer))
	}
	if !Is(outer, Summary) {
		t.Error("Expected Is to match the summary kind")
	}
	if KindOf(errors.New("plain")) != Unknown {
		t.Error("Expected plain errors to report the unknown kind")
	}
	if Is(nil, Summary) {
		t.Error("Expected nil error not to match any kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Generation, "Failed to generate SQL query", cause)
	if !errors.Is(err, cause) {
		t.Error("Expected the cause to be reachable through Unwrap")
	}
}
