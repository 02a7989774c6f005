package app

import (
	"errors"
	"fmt"
	"net/http"

	"kgr/api/internal/auth"
	"kgr/api/internal/editor"
	"kgr/api/internal/export"
	"kgr/api/internal/history"
	"kgr/api/internal/media"
	"kgr/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

// mapError turns an error from any layer into the JSON error triple.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, editor.ErrSessionNotFound),
		errors.Is(err, history.ErrRevisionNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, editor.ErrSubmitInProgress):
		return http.StatusConflict, "SUBMIT_IN_PROGRESS", "A submission is already in progress", nil
	case errors.Is(err, editor.ErrSessionClosed):
		return http.StatusConflict, "SESSION_CLOSED", "Editor session is closed", nil
	case errors.Is(err, editor.ErrWrongMode):
		return http.StatusConflict, "WRONG_MODE", err.Error(), nil
	case errors.Is(err, editor.ErrInvalidMode),
		errors.Is(err, editor.ErrInvalidTag),
		errors.Is(err, editor.ErrIndexOutOfRange),
		errors.Is(err, editor.ErrInvalidStatus),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil
	case errors.Is(err, editor.ErrTooManyTags):
		return http.StatusUnprocessableEntity, "TOO_MANY_TAGS", fmt.Sprintf("An article can have at most %d tags", editor.MaxTags), nil
	case errors.Is(err, editor.ErrEmptyContent):
		return http.StatusUnprocessableEntity, "EMPTY_CONTENT", "Content cannot be empty", nil
	case errors.Is(err, editor.ErrInvalidThumbnail), errors.Is(err, media.ErrNotImage):
		return http.StatusUnprocessableEntity, "INVALID_THUMBNAIL", "Thumbnail must be an image", nil
	case errors.Is(err, media.ErrEmptyUpload):
		return http.StatusBadRequest, "EMPTY_UPLOAD", "File is empty", nil
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrPandocNotFound):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
