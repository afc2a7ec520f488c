package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"podnotes/api/internal/archive"
	"podnotes/api/internal/auth"
	"podnotes/api/internal/export"
	"podnotes/api/internal/outline"
	"podnotes/api/internal/store"
)

// DomainError is an error that already knows its HTTP rendering.
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

var errArchiveDisabled = domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Outline archive is not configured", nil)

var kindStatus = map[outline.Kind]struct {
	status int
	code   string
}{
	outline.KindNotFound:   {http.StatusNotFound, "NOT_FOUND"},
	outline.KindValidation: {http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	outline.KindBoundary:   {http.StatusConflict, "BOUNDARY"},
	outline.KindCycle:      {http.StatusUnprocessableEntity, "CYCLE"},
	outline.KindConflict:   {http.StatusConflict, "CONFLICT"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var outlineErr *outline.Error
	if errors.As(err, &outlineErr) {
		if mapped, ok := kindStatus[outlineErr.Kind]; ok {
			return mapped.status, mapped.code, outlineErr.Error(), map[string]any{"kind": outlineErr.Kind, "op": outlineErr.Op}
		}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export renderer is not installed", nil
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Archived snapshot not found", nil
	case errors.Is(err, archive.ErrUnchanged):
		return http.StatusConflict, "ARCHIVE_UNCHANGED", "Outline has not changed since the last snapshot", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
