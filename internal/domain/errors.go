package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("validation failed")
	ErrCorrelationFailed = errors.New("correlation failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInFlight          = errors.New("event already in progress")
	ErrAlreadyBound      = errors.New("job already bound to another external id")
)
