package app

import (
	"errors"
	"fmt"
	"net/http"

	"marginalia/api/internal/nipsa"
	"marginalia/api/internal/presenter"
	"marginalia/api/internal/store"
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

// mapError translates service errors into an HTTP status and error body.
// Anything unrecognized is a 500 and the caller should log it.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, nipsa.ErrInvalidUserID):
		return http.StatusBadRequest, "INVALID_USERID", "Invalid userid", nil
	case errors.Is(err, errNIPSADisabled):
		return http.StatusServiceUnavailable, "NIPSA_UNAVAILABLE", "Shadow-ban store not configured", nil
	case errors.Is(err, presenter.ErrFieldCollision):
		return http.StatusInternalServerError, "CONFIGURATION_ERROR", "Presenter misconfigured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
