package app

import (
	"fmt"
	"net/http"
)

const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeServerError        = "SERVER_ERROR"
	CodeInvalidBody        = "INVALID_BODY"
	CodeUnknownOperation   = "UNKNOWN_OPERATION"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
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

func errUnauthenticated(message string) *DomainError {
	return domainError(http.StatusUnauthorized, CodeUnauthenticated, message, nil)
}

// errInvalidCredentials carries the same message for every login failure.
func errInvalidCredentials() *DomainError {
	return domainError(http.StatusUnauthorized, CodeInvalidCredentials, "Incorrect credentials", nil)
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, message, nil)
}

func errValidation(fields map[string]string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, "Validation failed", fields)
}

func errServer() *DomainError {
	return domainError(http.StatusInternalServerError, CodeServerError, "Server error", nil)
}
