// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type errorMapping struct {
	kind   error
	status int
	title  string
}

var errorMappings = []errorMapping{
	{shared.ErrNoCurrentUser, http.StatusUnauthorized, "Unauthorized"},
	{shared.ErrInvalidCredentials, http.StatusUnauthorized, "Unauthorized"},
	{shared.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{shared.ErrCSRFTokenMissing, http.StatusForbidden, "Forbidden"},
	{shared.ErrCSRFTokenMismatch, http.StatusForbidden, "Forbidden"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrBadRequest, http.StatusBadRequest, "Bad Request"},
	{shared.ErrAmbiguousURL, http.StatusBadRequest, "Ambiguous Lookup"},
	{shared.ErrAssociationNotFound, http.StatusNotFound, "Association Not Found"},
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrUniqueness, http.StatusConflict, "Duplicate"},
	{shared.ErrAssociationInUse, http.StatusConflict, "Association In Use"},
	{shared.ErrAuthorization, http.StatusInternalServerError, "Authorization Error"},
}

// StatusFor returns the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		detail := ProblemDetail{Title: m.title, Status: m.status}
		if coded, ok := shared.AsError(err); ok {
			detail.Detail = coded.Message
			detail.Code = coded.Code
			detail.Key = coded.Key
		} else if m.status < http.StatusInternalServerError {
			detail.Detail = err.Error()
		}
		JSON(w, m.status, detail)
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
