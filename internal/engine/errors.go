package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error is returned by every rejected command. The instance or template the
// command targeted is left untouched.
//
// Error carries structured detail so API boundaries can attribute messages:
//   - Fields maps field keys to validation messages (ValidationFailed)
//   - Issues lists publish problems in order (PublishBlocked)
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// InstanceID identifies the affected instance or template, when known.
	InstanceID string

	// Fields holds per-field validation messages.
	Fields map[string]string

	// Issues holds publish gate findings.
	Issues []string
}

// ErrorKind categorizes command rejections.
type ErrorKind string

const (
	// KindPermissionDenied: the actor or its group may not perform the command.
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"

	// KindInvalidTransition: the action is not reachable from the current
	// position, or the instance is closed.
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"

	// KindValidationFailed: form values fail required or bounds checks.
	KindValidationFailed ErrorKind = "VALIDATION_FAILED"

	// KindPreconditionNotMet: a gate (attachment statuses, reply message,
	// delegation target) is not satisfied.
	KindPreconditionNotMet ErrorKind = "PRECONDITION_NOT_MET"

	// KindNotFound: an unknown template, instance, action or attachment id.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindPublishBlocked: the flow graph validator reported issues.
	KindPublishBlocked ErrorKind = "PUBLISH_BLOCKED"

	// KindConflict: the stored snapshot changed since it was read.
	KindConflict ErrorKind = "CONFLICT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if e.InstanceID != "" {
		fmt.Fprintf(&b, " (id=%s)", e.InstanceID)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + e.Fields[k]
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, "; "))
	}
	if len(e.Issues) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Issues, " "))
	}
	return b.String()
}

func newError(kind ErrorKind, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), InstanceID: id}
}

func permissionDenied(id, format string, args ...any) *Error {
	return newError(KindPermissionDenied, id, format, args...)
}

func invalidTransition(id, format string, args ...any) *Error {
	return newError(KindInvalidTransition, id, format, args...)
}

func preconditionNotMet(id, format string, args ...any) *Error {
	return newError(KindPreconditionNotMet, id, format, args...)
}

func notFound(id, format string, args ...any) *Error {
	return newError(KindNotFound, id, format, args...)
}

func validationFailed(id string, fields map[string]string) *Error {
	return &Error{Kind: KindValidationFailed, Message: "form validation failed", InstanceID: id, Fields: fields}
}

func validationMessage(id, format string, args ...any) *Error {
	return newError(KindValidationFailed, id, format, args...)
}

// KindOf returns the kind of an engine error, or "" for other errors.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsPermissionDenied reports whether err is a PermissionDenied rejection.
func IsPermissionDenied(err error) bool { return KindOf(err) == KindPermissionDenied }

// IsInvalidTransition reports whether err is an InvalidTransition rejection.
func IsInvalidTransition(err error) bool { return KindOf(err) == KindInvalidTransition }

// IsValidationFailed reports whether err is a ValidationFailed rejection.
func IsValidationFailed(err error) bool { return KindOf(err) == KindValidationFailed }

// IsPreconditionNotMet reports whether err is a PreconditionNotMet rejection.
func IsPreconditionNotMet(err error) bool { return KindOf(err) == KindPreconditionNotMet }

// IsNotFound reports whether err is a NotFound rejection.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsPublishBlocked reports whether err is a PublishBlocked rejection.
func IsPublishBlocked(err error) bool { return KindOf(err) == KindPublishBlocked }

// IsConflict reports whether err is a Conflict rejection.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
