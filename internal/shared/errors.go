package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks a structurally invalid entity.
	ErrValidation = errors.New("validation failed")
	// ErrUniqueness marks a name or composite-key collision.
	ErrUniqueness = errors.New("uniqueness violation")
	// ErrAssociationNotFound indicates a referenced link does not exist.
	ErrAssociationNotFound = errors.New("association not found")
	// ErrAssociationInUse indicates a record still has dependents.
	ErrAssociationInUse = errors.New("association in use")
	// ErrNoCurrentUser occurs when a grant check has no principal.
	ErrNoCurrentUser = errors.New("no current user")
	// ErrBadRequest indicates insufficient or malformed parameters.
	ErrBadRequest = errors.New("bad request")
	// ErrAmbiguousURL indicates a lookup that cannot be resolved from its input.
	ErrAmbiguousURL = errors.New("ambiguous lookup")
	// ErrAuthorization wraps infrastructure failures during grant resolution.
	ErrAuthorization = errors.New("authorization error")
	// ErrForbidden is the refusal produced by a negative grant decision.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// Error is a coded, user-presentable failure.
type Error struct {
	Kind    error
	Code    string
	Key     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// AsError extracts a coded error from err.
func AsError(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	coded, ok := AsError(err)
	return ok && coded.Code == code.Code
}
