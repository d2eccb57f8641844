// Package boxerr defines the typed error taxonomy used across the Box
// subsystem. Errors carry a Kind plus whatever structured fields (file
// path, expected/observed tuples) the failing operation has on hand, so
// callers and log lines can report the offending file and the tuple that
// disagreed without string-parsing an error message.
package boxerr

import (
	"errors"
	"fmt"
)

// Kind classifies a Box-level error. Consumers should branch on Kind via
// Is, not on the error's message text.
type Kind int

const (
	// Unknown is the zero value and never returned by this package.
	Unknown Kind = iota

	// ArchiveInvalid: an archive file cannot be parsed. Scoped to one
	// file; never aborts a directory-wide rebuild/sync.
	ArchiveInvalid

	// NotFound: no record matches the requested (name, content_id).
	NotFound

	// Ambiguous: more than one row matches a (name, content_id) lookup,
	// violating the index's uniqueness invariant. Triggers a rebuild
	// suggestion.
	Ambiguous

	// IndexOutOfSync: a resolved archive's metadata disagrees with the
	// index row that pointed at it. Fatal for that operation.
	IndexOutOfSync

	// IndexUnwritable: the index file exists but a write failed (e.g.
	// disk full).
	IndexUnwritable

	// IndexReadOnly: the filesystem is read-only and the index is
	// present; reads still work, mutating operations do not.
	IndexReadOnly

	// IndexUnavailable: no database could be opened at all (disk full, or
	// a read-only filesystem with no index present). Open degrades to a
	// database-less, directory-enumeration index instead of failing; this
	// kind is what a subsequent mutating call (rebuild/sync/add/remove)
	// against that degraded index returns.
	IndexUnavailable

	// IndexBusy: concurrent lock contention exceeded the retry budget.
	IndexBusy

	// WrongBox: a record from one box was passed to another box's
	// resolve.
	WrongBox
)

func (k Kind) String() string {
	switch k {
	case ArchiveInvalid:
		return "ArchiveInvalid"
	case NotFound:
		return "NotFound"
	case Ambiguous:
		return "Ambiguous"
	case IndexOutOfSync:
		return "IndexOutOfSync"
	case IndexUnwritable:
		return "IndexUnwritable"
	case IndexReadOnly:
		return "IndexReadOnly"
	case IndexUnavailable:
		return "IndexUnavailable"
	case IndexBusy:
		return "IndexBusy"
	case WrongBox:
		return "WrongBox"
	default:
		return "Unknown"
	}
}

// Error is the concrete type returned for every Box-level failure.
type Error struct {
	Kind Kind
	Msg  string

	// Path names the offending file, when the error concerns one.
	Path string

	// Expected/Observed carry a mismatched tuple (e.g. the (name,
	// content_id, kind) triple resolve() validates), rendered in the
	// message so the user sees both sides of the disagreement.
	Expected string
	Observed string

	// Wrapped is the underlying error, if any (e.g. a *sqlite3.Error or
	// os.PathError). Unwrap exposes it for errors.Is/As.
	Wrapped error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Expected != "" || e.Observed != "" {
		msg += fmt.Sprintf(" (expected=%s observed=%s)", e.Expected, e.Observed)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an existing error.
func Wrap(kind Kind, wrapped error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Wrapped: wrapped}
}

// WithPath sets Path and returns e, for chaining off New/Wrap.
func (e *Error) WithPath(p string) *Error {
	e.Path = p
	return e
}

// WithTuple sets Expected/Observed and returns e, for chaining off New/Wrap.
func (e *Error) WithTuple(expected, observed string) *Error {
	e.Expected = expected
	e.Observed = observed
	return e
}

// Is reports whether err is a *Error of the given kind. Use this instead
// of type-asserting directly so call sites read naturally:
// boxerr.Is(err, boxerr.NotFound).
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}
