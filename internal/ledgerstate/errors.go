package ledgerstate

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the distinct error variants the engine surfaces, per
// spec.md §7. These are never string-matched by callers — compare against
// the sentinel values below or use errors.Is.
type ErrorKind int

const (
	KindKeyExists ErrorKind = iota
	KindNotFound
	KindAlreadyActive
	KindHeaderActive
	KindSealed
	KindHasChild
	KindHandleExpired
	KindOverflow
)

func (k ErrorKind) String() string {
	switch k {
	case KindKeyExists:
		return "KeyExists"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyActive:
		return "AlreadyActive"
	case KindHeaderActive:
		return "HeaderActive"
	case KindSealed:
		return "Sealed"
	case KindHasChild:
		return "HasChild"
	case KindHandleExpired:
		return "HandleExpired"
	case KindOverflow:
		return "Overflow"
	default:
		return "Unknown"
	}
}

// StateError wraps one of the §7 error kinds with the operation and key that
// triggered it, grounded on the teacher's DatabaseError
// (internal/storage/relationalDb/errors.go): Code/Operation/Cause plus
// Unwrap/Is so callers can still errors.Is against the bare sentinel.
type StateError struct {
	Kind ErrorKind
	Op   string
	Key  Key
}

func (e *StateError) Error() string {
	return fmt.Sprintf("ledgerstate: %s: %s", e.Op, e.Kind)
}

func (e *StateError) Unwrap() error {
	return sentinelFor(e.Kind)
}

func (e *StateError) Is(target error) bool {
	return errors.Is(sentinelFor(e.Kind), target)
}

func newStateError(kind ErrorKind, op string, key Key) *StateError {
	return &StateError{Kind: kind, Op: op, Key: key}
}

// Sentinel errors, one per kind, so callers can write
// `errors.Is(err, ledgerstate.ErrSealed)` without caring about *StateError.
var (
	ErrKeyExists     = errors.New("ledgerstate: key exists")
	ErrNotFound      = errors.New("ledgerstate: not found")
	ErrAlreadyActive = errors.New("ledgerstate: handle already active")
	ErrHeaderActive  = errors.New("ledgerstate: header handle already active")
	ErrSealed        = errors.New("ledgerstate: view is sealed")
	ErrHasChild      = errors.New("ledgerstate: view has an open child")
	ErrHandleExpired = errors.New("ledgerstate: handle expired")
	ErrOverflow      = errors.New("ledgerstate: arithmetic overflow")
)

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindKeyExists:
		return ErrKeyExists
	case KindNotFound:
		return ErrNotFound
	case KindAlreadyActive:
		return ErrAlreadyActive
	case KindHeaderActive:
		return ErrHeaderActive
	case KindSealed:
		return ErrSealed
	case KindHasChild:
		return ErrHasChild
	case KindHandleExpired:
		return ErrHandleExpired
	case KindOverflow:
		return ErrOverflow
	default:
		return errors.New("ledgerstate: unknown error")
	}
}

// InvariantViolation is fatal to the enclosing root: internal callers panic
// with this type rather than returning an error, per spec.md §7. Only the
// root ledger-close boundary (internal/ledgerstate/txn) recovers it.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "ledgerstate: invariant violated: " + e.Reason
}

func panicInvariant(reason string) {
	panic(&InvariantViolation{Reason: reason})
}

// PanicInvariant is panicInvariant exported for other engine packages
// (internal/exchange, internal/manageoffer) that raise the same fatal
// condition from outside package ledgerstate.
func PanicInvariant(reason string) {
	panicInvariant(reason)
}
