package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyConfirmed  = errors.New("order already confirmed")
	ErrInvalidReference  = errors.New("invalid menu item reference")
	ErrConflict          = errors.New("concurrent modification, retry")
	ErrTransient         = errors.New("store temporarily unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
)
