package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorMapper maps NLU provider and notifier errors onto the ivrbridge taxonomy.
type ErrorMapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Category(err error) string
}

type mapRule struct {
	label    string
	category error
	needles  []string
}

// Rules are checked in order; the first needle found in the lowercased
// message wins.
var defaultRules = []mapRule{
	{"session unavailable", ErrSessionNotFound, []string{"session not found", "session expired"}},
	{"resource not found", ErrNotFound, []string{"not found", "does not exist", "unknown flight", "unknown booking"}},
	{"access denied", ErrPermissionDenied, []string{"permission denied", "unauthorized", "forbidden", "invalid_auth", "signature"}},
	{"rate limited", ErrTransient, []string{"rate limit", "quota", "too many requests", "overloaded"}},
	{"invalid request", ErrInvalidInput, []string{"invalid input", "invalid request", "bad request"}},
	{"invalid model output", ErrInvalidModelOutput, []string{"invalid model output", "malformed json", "invalid json", "unknown intent"}},
	{"request timeout", ErrTransient, []string{"timeout", "deadline exceeded"}},
	{"network error", ErrTransient, []string{"network", "connection", "unreachable", "eof"}},
	{"conflict", ErrConflict, []string{"conflict", "already exists"}},
	{"duplicate event", ErrDuplicateEvent, []string{"duplicate"}},
}

var categoryNames = []struct {
	err  error
	name string
}{
	{ErrSessionNotFound, "ErrSessionNotFound"},
	{ErrDuplicateEvent, "ErrDuplicateEvent"},
	{ErrPermissionDenied, "ErrPermissionDenied"},
	{ErrInvalidInput, "ErrInvalidInput"},
	{ErrNotFound, "ErrNotFound"},
	{ErrConflict, "ErrConflict"},
	{ErrTransient, "ErrTransient"},
	{ErrInvalidModelOutput, "ErrInvalidModelOutput"},
	{ErrInternal, "ErrInternal"},
}

// DefaultErrorMapper classifies errors by sentinel first, then by message.
type DefaultErrorMapper struct {
	rules []mapRule
}

func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{rules: defaultRules}
}

// MapError wraps err in a taxonomy sentinel. Errors already carrying one
// are returned unchanged; context.Canceled passes through.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w", ErrTransient)
	}
	if m.Category(err) != "Unknown" {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range m.rules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return fmt.Errorf("%s: %w", rule.label, rule.category)
			}
		}
	}
	return fmt.Errorf("internal error: %w", ErrInternal)
}

func (m *DefaultErrorMapper) IsRetryable(err error) bool {
	return IsRetryable(err)
}

// Category returns the sentinel name err wraps, or "Unknown".
func (m *DefaultErrorMapper) Category(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range categoryNames {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return "Unknown"
}

func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory replaces err with category, keeping only message.
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, category)
}

func IsCategory(err error, category error) bool {
	return err != nil && errors.Is(err, category)
}

func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// SessionNotFound reports a missing or expired call.
func SessionNotFound(callID string) error {
	return fmt.Errorf("call %s: %w", callID, ErrSessionNotFound)
}

func PermissionDenied(message string) error {
	return fmt.Errorf("%s: %w", message, ErrPermissionDenied)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

func InvalidModelOutput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidModelOutput)
}

// IsRetryable reports transient and conflict errors. Cancellation never retries.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
