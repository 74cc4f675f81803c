package errors

import (
	"fmt"
	"strings"
)

// Code is the machine-readable kind of a LinkError.
type Code string

const (
	// CodeInvalidEntityType indicates a malformed or unknown entity reference
	CodeInvalidEntityType Code = "INVALID_ENTITY_TYPE"
	// CodeInvalidLinkKind indicates an unknown kind or one the rule table disallows
	CodeInvalidLinkKind Code = "INVALID_LINK_KIND"
	// CodeEntityNotFound indicates a missing entity or link
	CodeEntityNotFound Code = "ENTITY_NOT_FOUND"
	// CodeTenantMismatch indicates a cross-tenant link attempt
	CodeTenantMismatch Code = "TENANT_MISMATCH"
	// CodeDuplicateLink indicates an identical active link already exists
	CodeDuplicateLink Code = "DUPLICATE_LINK"
	// CodeCircularDependency indicates the link would close a cycle
	CodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	// CodePermissionDenied indicates the authorization collaborator refused
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeValidationFailed is the catch-all for unexpected failures
	CodeValidationFailed Code = "VALIDATION_FAILED"
	// CodeRateLimitExceeded indicates the caller is being throttled
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
)

// LinkError is the single error family surfaced by the link subsystem.
type LinkError struct {
	Code      Code                   `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

// New creates a LinkError.
func New(code Code, message string) *LinkError {
	return &LinkError{
		Code:      code,
		Message:   message,
		Details:   make(map[string]interface{}),
		Retryable: code == CodeRateLimitExceeded,
	}
}

// Newf creates a LinkError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *LinkError {
	return New(code, fmt.Sprintf(format, args...))
}

// Error implements the error interface
func (e *LinkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithCause adds a cause to the error
func (e *LinkError) WithCause(cause error) *LinkError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *LinkError) WithDetail(key string, value interface{}) *LinkError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *LinkError) WithDetails(details map[string]interface{}) *LinkError {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// WithRetryable sets whether the error is retryable
func (e *LinkError) WithRetryable(retryable bool) *LinkError {
	e.Retryable = retryable
	return e
}

// Is matches another LinkError with the same code.
func (e *LinkError) Is(target error) bool {
	t, ok := target.(*LinkError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Unwrap returns the underlying cause
func (e *LinkError) Unwrap() error {
	return e.Cause
}

func NewInvalidEntityType(field string, value interface{}) *LinkError {
	return Newf(CodeInvalidEntityType, "invalid entity reference in %s", field).
		WithDetail("field", field).
		WithDetail("value", value)
}

func NewInvalidLinkKind(message string) *LinkError {
	return New(CodeInvalidLinkKind, message)
}

func NewEntityNotFound(what, id string) *LinkError {
	return Newf(CodeEntityNotFound, "%s %s does not exist", what, id).
		WithDetail("id", id)
}

func NewTenantMismatch(fromTenant, toTenant string) *LinkError {
	return New(CodeTenantMismatch, "links cannot cross tenant boundaries").
		WithDetail("fromTenantId", fromTenant).
		WithDetail("toTenantId", toTenant)
}

func NewDuplicateLink(from, to, kind string) *LinkError {
	return Newf(CodeDuplicateLink, "an active %s link from %s to %s already exists", kind, from, to)
}

func NewCircularDependency(from, to, kind string) *LinkError {
	return Newf(CodeCircularDependency, "%s link from %s to %s would create a cycle", kind, from, to)
}

func NewPermissionDenied(message string) *LinkError {
	return New(CodePermissionDenied, message)
}

func NewValidationFailed(message string) *LinkError {
	return New(CodeValidationFailed, message)
}

func NewRateLimitExceeded(key string) *LinkError {
	return New(CodeRateLimitExceeded, "too many link writes, try again later").
		WithDetail("key", key)
}

// ValidationErrors aggregates the violations found for one link.
type ValidationErrors struct {
	Errors []*LinkError `json:"errors"`
}

// NewValidationErrors creates a new validation errors collection
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]*LinkError, 0)}
}

// Add adds a violation
func (v *ValidationErrors) Add(err *LinkError) {
	v.Errors = append(v.Errors, err)
}

// HasErrors checks if there are any validation errors
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Has reports whether a violation with code was recorded.
func (v *ValidationErrors) Has(code Code) bool {
	for _, err := range v.Errors {
		if err.Code == code {
			return true
		}
	}
	return false
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, err := range v.Errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Codes lists the violation codes in order.
func (v *ValidationErrors) Codes() []Code {
	codes := make([]Code, 0, len(v.Errors))
	for _, err := range v.Errors {
		codes = append(codes, err.Code)
	}
	return codes
}

// ToLinkError collapses the violations into one error. Tenant mismatch wins over
// every other code; otherwise the first violation decides the code.
func (v *ValidationErrors) ToLinkError() *LinkError {
	if !v.HasErrors() {
		return nil
	}
	primary := v.Errors[0]
	for _, err := range v.Errors {
		if err.Code == CodeTenantMismatch {
			primary = err
			break
		}
	}

	out := New(primary.Code, primary.Message).
		WithCause(primary.Cause).
		WithRetryable(primary.Retryable)
	for k, val := range primary.Details {
		out.WithDetail(k, val)
	}
	if len(v.Errors) > 1 {
		out.WithDetail("violations", v.ToMap())
	}
	return out
}

// ToMap renders violations for logs and error details.
func (v *ValidationErrors) ToMap() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(v.Errors))
	for _, err := range v.Errors {
		entry := map[string]interface{}{
			"code":    string(err.Code),
			"message": err.Message,
		}
		if len(err.Details) > 0 {
			entry["details"] = err.Details
		}
		out = append(out, entry)
	}
	return out
}
