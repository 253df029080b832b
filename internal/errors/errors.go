package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrSessionNotFound - call session missing or expired (expected; answer with a generic "session expired" prompt)
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateEvent - webhook retry already handled (replay cached reply)
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrPermissionDenied - webhook signature rejected
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput - malformed webhook body or transaction data
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found (flight, booking reference)
	ErrNotFound = errors.New("not found")

	// ErrConflict - conflicting state transition
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error (provider timeout, rate limit, network)
	ErrTransient = errors.New("transient error")

	// ErrInvalidModelOutput - NLU backend returned malformed structured output
	ErrInvalidModelOutput = errors.New("invalid model output")

	// ErrInternal - internal error (generic apology prompt on the voice side)
	ErrInternal = errors.New("internal error")
)
