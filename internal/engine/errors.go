package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so collaborators can branch without
// string-matching.
type Kind int

const (
	// KindInvalidInput covers empty content, an empty target project,
	// self-loop link attempts, and backup/restore on an in-memory store.
	// Unknown enum values and out-of-range numbers are not rejected: they
	// fall back to a default or are clamped.
	KindInvalidInput Kind = iota
	// KindNotFound covers single-item get/update/delete of a missing id,
	// link updates on a missing edge, and restores against a missing
	// memory or history row.
	KindNotFound
	// KindIntegrity classifies unique-key and foreign-key violations. No
	// operation in this package returns it: such violations from the
	// embedded store are reported as KindStorage. Either kind inside a
	// batch rolls back the whole transaction.
	KindIntegrity
	// KindStorage covers I/O or migration failure. Fatal.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindNotFound:
		return "NotFound"
	case KindIntegrity:
		return "IntegrityError"
	case KindStorage:
		return "StorageError"
	default:
		return "Unknown"
	}
}

// Error is the typed error the engine returns. Payload carries the
// identifying value relevant to the failure (typically the missing or
// offending id) so a collaborator can render a localized message without
// parsing Err.
type Error struct {
	Kind    Kind
	Payload string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Payload != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Payload, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Payload != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Payload)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newInvalidInput(payload string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Payload: payload, Err: err}
}

func newNotFound(payload string) *Error {
	return &Error{Kind: KindNotFound, Payload: payload}
}

func newIntegrity(payload string, err error) *Error {
	return &Error{Kind: KindIntegrity, Payload: payload, Err: err}
}

func newStorage(err error) *Error {
	return &Error{Kind: KindStorage, Err: err}
}

// IsNotFound reports whether err is an engine NotFound error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsInvalidInput reports whether err is an engine InvalidInput error.
func IsInvalidInput(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInvalidInput
}
