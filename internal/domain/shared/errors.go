package shared

import "errors"

// Kind classifies an error for transport mapping. Kinds are a closed
// taxonomy; handlers map them to HTTP statuses without inspecting
// messages.
type Kind string

const (
	KindUnauthenticated      Kind = "Unauthenticated"
	KindTokenExpired         Kind = "TokenExpired"
	KindTokenInvalid         Kind = "TokenInvalid"
	KindForbidden            Kind = "Forbidden"
	KindTenantMismatch       Kind = "TenantMismatch"
	KindTenantSuspended      Kind = "TenantSuspended"
	KindTenantRequired       Kind = "TenantRequired"
	KindNoContext            Kind = "NoContext"
	KindNotFound             Kind = "NotFound"
	KindConflict             Kind = "Conflict"
	KindValidationFailed     Kind = "ValidationFailed"
	KindDataStoreUnavailable Kind = "DataStoreUnavailable"
	KindCacheUnavailable     Kind = "CacheUnavailable"
	KindDeadlineExceeded     Kind = "DeadlineExceeded"
	KindInternal             Kind = "Internal"
)

// KindError is a classified error. Message is safe to surface to
// clients; wrapped causes are not.
type KindError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *KindError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *KindError) Unwrap() error { return e.cause }

// Is matches two KindErrors by kind, so sentinel comparisons like
// errors.Is(err, shared.ErrNotFound) work across wrapped instances.
func (e *KindError) Is(target error) bool {
	var ke *KindError
	if errors.As(target, &ke) {
		return e.Kind == ke.Kind
	}
	return false
}

// NewError creates a classified error.
func NewError(kind Kind, message string) *KindError {
	return &KindError{Kind: kind, Message: message}
}

// WrapError classifies an underlying error.
func WrapError(kind Kind, message string, cause error) *KindError {
	return &KindError{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the kind of err, or KindInternal for unclassified
// errors.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindInternal
}

// Common sentinels. Cross-tenant lookups must surface ErrNotFound,
// indistinguishable from truly missing rows.
var (
	ErrUnauthenticated  = NewError(KindUnauthenticated, "authentication required")
	ErrTokenExpired     = NewError(KindTokenExpired, "token has expired")
	ErrTokenInvalid     = NewError(KindTokenInvalid, "token is invalid")
	ErrForbidden        = NewError(KindForbidden, "operation not permitted")
	ErrTenantMismatch   = NewError(KindTenantMismatch, "tenant does not match the authenticated principal")
	ErrTenantSuspended  = NewError(KindTenantSuspended, "tenant is suspended")
	ErrTenantRequired   = NewError(KindTenantRequired, "tenant identification required")
	ErrNoContext        = NewError(KindNoContext, "no tenant context installed")
	ErrNotFound         = NewError(KindNotFound, "resource not found")
	ErrConflict         = NewError(KindConflict, "resource conflict")
	ErrValidationFailed = NewError(KindValidationFailed, "request validation failed")
)
