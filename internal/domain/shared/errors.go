package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error for transport mapping and retry policy.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInvariantViolation
	KindRateLimited
	KindUnavailable
)

// Stable wire codes surfaced in the error envelope. Handlers never invent
// codes outside this set plus the auth-specific ones below.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeAuthRequired     = "AUTHENTICATION_REQUIRED"
	CodePermissions      = "INSUFFICIENT_PERMISSIONS"
	CodeNotFound         = "RESOURCE_NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInsufficientCred = "INSUFFICIENT_CREDITS"
	CodeFactionRestrict  = "FACTION_RESTRICTION"
	CodeTeamPermission   = "TEAM_PERMISSION_DENIED"

	CodeInvalidCredential   = "INVALID_CREDENTIAL"
	CodeSecondFactorNeeded  = "SECOND_FACTOR_REQUIRED"
	CodeSecondFactorInvalid = "SECOND_FACTOR_INVALID"
	CodeAccountDisabled     = "ACCOUNT_DISABLED"
)

// Error is the domain error type carried across all layers. Kind drives the
// HTTP status, Code is the stable wire code, Details holds per-field messages
// for validation failures.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by kind and, when the target carries one, by code. This lets
// callers write errors.Is(err, shared.ErrNotFound) without caring about the
// message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// Sentinel values for errors.Is checks.
var (
	ErrNotFound    = &Error{Kind: KindNotFound, Code: CodeNotFound}
	ErrConflict    = &Error{Kind: KindConflict, Code: CodeConflict}
	ErrUnavailable = &Error{Kind: KindUnavailable, Code: CodeUnavailable}
	ErrValidation  = &Error{Kind: KindValidation, Code: CodeValidation}
	ErrForbidden   = &Error{Kind: KindForbidden, Code: CodePermissions}
)

// NewValidationError builds a field-scoped validation failure.
func NewValidationError(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: fmt.Sprintf("%s: %s", field, message),
		Details: map[string]string{field: message},
	}
}

// NewValidationErrorf builds a validation failure without a field binding.
func NewValidationErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewInvariantViolation marks an invariant breach caused by input. It
// surfaces as a validation error per the error-handling contract.
func NewInvariantViolation(detail string) *Error {
	return &Error{Kind: KindInvariantViolation, Code: CodeValidation, Message: detail}
}

// NewNotFoundError hides whether the resource ever existed.
func NewNotFoundError(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: resource + " not found"}
}

// NewConflictError reports an optimistic-concurrency or uniqueness clash.
func NewConflictError(detail string) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: detail}
}

// NewUnavailableError reports a failed or timed-out authoritative dependency.
func NewUnavailableError(detail string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Code: CodeUnavailable, Message: detail, Cause: cause}
}

// NewUnauthorizedError keeps the client-facing message generic; detail
// belongs in the audit trail, not the response.
func NewUnauthorizedError() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeAuthRequired, Message: "authentication required"}
}

// NewForbiddenError reports a permission failure with a stable code override
// (INSUFFICIENT_PERMISSIONS, TEAM_PERMISSION_DENIED, FACTION_RESTRICTION).
func NewForbiddenError(code, message string) *Error {
	if code == "" {
		code = CodePermissions
	}
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// NewRateLimitedError carries the retry-after hint in Details.
func NewRateLimitedError(retryAfter string) *Error {
	return &Error{
		Kind:    KindRateLimited,
		Code:    CodeRateLimited,
		Message: "rate limit exceeded",
		Details: map[string]string{"retry_after": retryAfter},
	}
}

// NewInsufficientCreditsError reports a failed debit.
func NewInsufficientCreditsError(required, available int64) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInsufficientCred,
		Message: fmt.Sprintf("insufficient credits: need %d, have %d", required, available),
	}
}

// Auth-flow errors. Messages stay short and generic; detail belongs in the
// audit trail.

func NewInvalidCredentialError() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeInvalidCredential, Message: "invalid credentials"}
}

func NewSecondFactorRequiredError() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeSecondFactorNeeded, Message: "second factor required"}
}

func NewSecondFactorInvalidError() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeSecondFactorInvalid, Message: "second factor invalid"}
}

func NewAccountDisabledError() *Error {
	return &Error{Kind: KindForbidden, Code: CodeAccountDisabled, Message: "account disabled"}
}

// KindOf extracts the ErrorKind from any error in the chain, KindUnknown when
// the chain carries no domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// CodeOf extracts the stable wire code, empty when not a domain error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
