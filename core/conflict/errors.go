package conflict

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine failures so callers can map them to responses.
type ErrorKind string

const (
	// KindAnalysisUnavailable means the native conflict summary cannot be used.
	// The engine falls back to its own diff when it sees this kind.
	KindAnalysisUnavailable ErrorKind = "analysis_unavailable"
	// KindCollaboratorFailure means a store or reader call failed.
	KindCollaboratorFailure ErrorKind = "collaborator_failure"
	// KindInvalidResolution means a strategy does not apply to a conflict.
	KindInvalidResolution ErrorKind = "invalid_resolution"
	// KindConflictNotFound means a request references an unknown conflict id.
	KindConflictNotFound ErrorKind = "conflict_not_found"
	// KindInvalidFilter means an import filter could not be parsed.
	KindInvalidFilter ErrorKind = "invalid_filter"
	// KindIdentityMismatch means a conflict's id does not match its attributes.
	KindIdentityMismatch ErrorKind = "identity_mismatch"
)

// Sentinel errors matched with errors.Is against an *Error of the same kind.
var (
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrInvalidResolution   = errors.New("invalid resolution")
	ErrConflictNotFound    = errors.New("conflict not found")
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrIdentityMismatch    = errors.New("conflict identity mismatch")
)

var kindSentinels = map[ErrorKind]error{
	KindAnalysisUnavailable: ErrAnalysisUnavailable,
	KindCollaboratorFailure: ErrCollaboratorFailure,
	KindInvalidResolution:   ErrInvalidResolution,
	KindConflictNotFound:    ErrConflictNotFound,
	KindInvalidFilter:       ErrInvalidFilter,
	KindIdentityMismatch:    ErrIdentityMismatch,
}

// Error is the structured error returned by the engine and its collaborators.
type Error struct {
	Kind       ErrorKind
	Op         string
	Collection string
	DocumentID string
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Collection != "" {
		fmt.Fprintf(&b, " (collection %s", e.Collection)
		if e.DocumentID != "" {
			fmt.Fprintf(&b, ", document %s", e.DocumentID)
		}
		b.WriteString(")")
	} else if e.DocumentID != "" {
		fmt.Fprintf(&b, " (document %s)", e.DocumentID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// NewCollaboratorError wraps a failed store call with its operation context.
func NewCollaboratorError(op, collection, documentID string, err error) *Error {
	return &Error{
		Kind:       KindCollaboratorFailure,
		Op:         op,
		Collection: collection,
		DocumentID: documentID,
		Retryable:  true,
		Err:        err,
	}
}

// NewAnalysisUnavailable reports that the native summary path cannot be used.
func NewAnalysisUnavailable(op string, err error) *Error {
	return &Error{Kind: KindAnalysisUnavailable, Op: op, Err: err}
}

// NewInvalidFilter reports a malformed import filter.
func NewInvalidFilter(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidFilter, Op: "parse_filter", Err: fmt.Errorf(format, args...)}
}

func newInvalidResolution(c Conflict, format string, args ...any) *Error {
	return &Error{
		Kind:       KindInvalidResolution,
		Op:         "resolve",
		Collection: c.collectionLabel(),
		DocumentID: c.DocumentID,
		Err:        fmt.Errorf(format, args...),
	}
}

func newConflictNotFound(id string) *Error {
	return &Error{Kind: KindConflictNotFound, Op: "resolve", Err: fmt.Errorf("no conflict with id %q", id)}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
