package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Store-level sentinels. Credential store implementations return these; the
// services translate them into *Error at their boundary.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrRoleNotFound = errors.New("role not found")
	ErrRoleExists   = errors.New("role already exists")
)

// PolicyError is returned by a credential store that rejects a new password.
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string {
	return "password rejected: " + strings.Join(e.Reasons, "; ")
}

// ErrorKind classifies failures crossing a service boundary.
type ErrorKind string

const (
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindValidationFailed     ErrorKind = "validation_failed"
	KindDuplicateRole        ErrorKind = "duplicate_role"
	KindConfiguration        ErrorKind = "configuration_error"
	KindUnexpected           ErrorKind = "unexpected_fault"
)

// Reasons carried by AuthenticationFailed. They are for logs only; the
// external message is the same for all of them.
const (
	ReasonMissingCredentials = "missing_credentials"
	ReasonUnknownUser        = "unknown_user"
	ReasonBadPassword        = "bad_password"
	ReasonDuplicateUsername  = "duplicate_username"
)

// Error is the tagged error returned by the services.
type Error struct {
	Kind    ErrorKind
	Reason  string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString(" (" + e.Reason + ")")
	}
	if len(e.Details) > 0 {
		b.WriteString(": " + strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the Err* values below can be
// used with errors.Is regardless of reason or details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Reason == "" && t.Err == nil && len(t.Details) == 0
}

var (
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrValidationFailed     = &Error{Kind: KindValidationFailed}
	ErrDuplicateRole        = &Error{Kind: KindDuplicateRole}
	ErrConfiguration        = &Error{Kind: KindConfiguration}
	ErrUnexpected           = &Error{Kind: KindUnexpected}
)

func AuthFailed(reason string) *Error {
	return &Error{Kind: KindAuthenticationFailed, Reason: reason}
}

func ValidationFailed(details ...string) *Error {
	return &Error{Kind: KindValidationFailed, Details: details}
}

func DuplicateRole(name string) *Error {
	return &Error{Kind: KindDuplicateRole, Details: []string{fmt.Sprintf("role %q already exists", name)}}
}

func ConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// Unexpected wraps a collaborator fault. op names the failing step.
func Unexpected(op string, err error) *Error {
	return &Error{Kind: KindUnexpected, Reason: op, Err: err}
}

// KindOf returns the kind of err, or KindUnexpected for anything that is not
// an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
