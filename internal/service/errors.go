package service

import (
	"errors"
	"strings"

	"github.com/member-dashboard-api/internal/validation"
)

var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden access")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict") // e.g. email already registered
	ErrValidation       = errors.New("validation failed")
	ErrImportInProgress = errors.New("import is already running")
	ErrImportFinished   = errors.New("import has already finished")
)

// ValidationErrors carries field errors and matches ErrValidation
type ValidationErrors []validation.ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

func invalid(errs []validation.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return ValidationErrors(errs)
}
