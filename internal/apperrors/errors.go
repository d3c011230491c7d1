// Package apperrors defines typed errors with a machine-readable kind.
//
// The message of an error is what users see, so Error never prefixes the kind;
// callers that need the category use KindOf.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Validation indicates a query rejected by the SQL validator.
	Validation Kind = "validation"
	// Generation indicates the completion service failed to produce SQL.
	Generation Kind = "generation"
	// Execution indicates a database or proxy failure.
	Execution Kind = "execution"
	// Visualization indicates a chart could not be built or stored.
	Visualization Kind = "visualization"
	// Summary indicates the narrative summary could not be produced.
	Summary Kind = "summary"
	// Decomposition indicates a query could not be split for the remote proxy.
	Decomposition Kind = "decomposition"
	// EmptyData indicates a result set with no rows where rows are required.
	EmptyData Kind = "empty_data"
	// InvalidInput indicates a malformed caller request.
	InvalidInput Kind = "invalid_input"
	// NotFound indicates a missing resource.
	NotFound Kind = "not_found"
	// Unknown is reported for errors that carry no kind.
	Unknown Kind = "unknown"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf formats the message of a new error.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first typed error in the chain.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
