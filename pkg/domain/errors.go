package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies failures surfaced by the core.
type Kind string

// Error kinds. Each maps to exactly one caller-visible response.
const (
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindIllegalTransition  Kind = "illegal_transition"
	KindPreconditionFailed Kind = "precondition_failed"
	KindInvalid            Kind = "invalid"
	KindStoreFailure       Kind = "store_failure"
)

// Retryable reports whether a caller may safely retry an operation that
// failed with this kind.
func (k Kind) Retryable() bool {
	return k == KindStoreFailure
}

// Error is the structured failure returned by core operations.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Entity    EntityType
	ID        string
	Current   *LifecycleState
	Attempted *Position
	Gate      Gate
	Cause     error
	// Permanent marks a store failure that retrying cannot resolve, such as
	// a missing backend.
	Permanent bool
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinel errors by kind so callers can use errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrIllegalTransition  = &Error{Kind: KindIllegalTransition}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrInvalid            = &Error{Kind: KindInvalid}
	ErrStoreFailure       = &Error{Kind: KindStoreFailure}
)

// UnauthorizedError reports a missing or unusable actor.
func UnauthorizedError(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// NotFoundError reports a missing or soft-deleted entity.
func NotFoundError(entity EntityType, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// IllegalTransitionError reports a move that the lifecycle table does not declare.
func IllegalTransitionError(current LifecycleState, attempted Position, msg string) *Error {
	cur := current
	att := attempted
	return &Error{Kind: KindIllegalTransition, Current: &cur, Attempted: &att, Message: msg}
}

// PreconditionError reports an unmet gate.
func PreconditionError(gate Gate, msg string) *Error {
	return &Error{Kind: KindPreconditionFailed, Gate: gate, Message: msg}
}

// InvalidError reports malformed caller input.
func InvalidError(msg string) *Error {
	return &Error{Kind: KindInvalid, Message: msg}
}

// StoreFailureError wraps a persistence failure.
func StoreFailureError(op string, cause error) *Error {
	return &Error{Kind: KindStoreFailure, Op: op, Cause: cause}
}

// UnavailableError reports a store failure caused by configuration. It is
// never retryable.
func UnavailableError(op string, cause error) *Error {
	return &Error{Kind: KindStoreFailure, Op: op, Cause: cause, Permanent: true}
}

// PermissionError is the distinguishable denial produced by CheckPermission.
type PermissionError struct {
	ActorID  string
	Role     Role
	Action   Permission
	Resource *Resource
	Status   int
}

// NewPermissionError builds a denial with the default 403 status.
func NewPermissionError(actor *User, action Permission, resource *Resource) *PermissionError {
	e := &PermissionError{Action: action, Resource: resource, Status: http.StatusForbidden}
	if actor != nil {
		e.ActorID = actor.ID
		e.Role = actor.Role
	}
	return e
}

func (e *PermissionError) Error() string {
	if e.Resource != nil && e.Resource.ID != "" {
		return fmt.Sprintf("forbidden: role %s may not %s %s %s", e.Role, e.Action, e.Resource.Type, e.Resource.ID)
	}
	return fmt.Sprintf("forbidden: role %s may not %s", e.Role, e.Action)
}

// Is lets errors.Is(err, ErrForbidden) match permission denials.
func (e *PermissionError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindForbidden && t.Message == "" && t.Op == ""
}

// KindOf classifies an error. Unknown errors are store failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var perr *PermissionError
	if errors.As(err, &perr) {
		return KindForbidden
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return KindStoreFailure
}

// Retryable reports whether the operation that returned err may succeed when
// repeated unchanged.
func Retryable(err error) bool {
	if KindOf(err) != KindStoreFailure {
		return false
	}
	var derr *Error
	if errors.As(err, &derr) {
		return !derr.Permanent
	}
	return true
}
