// Package rules evaluates user-authored classification rules against emails.
package rules

import (
	"errors"
	"fmt"
)

// Email is the view of a message the engine classifies.
type Email struct {
	ID            int64
	UserID        int64
	Subject       string
	Sender        string
	Snippet       string
	Body          string
	HasAttachment bool
}

// Rule is an ordered list of conditions that files matching mail into a category.
type Rule struct {
	ID           int64
	UserID       int64
	Name         string
	CategoryID   int64
	CategoryName string
	Conditions   []Condition
	IsActive     bool

	// Invalid is set when the stored conditions could not be parsed.
	// An invalid rule never matches.
	Invalid error
}

// Matches reports whether every condition holds for the email, left to right.
func (r *Rule) Matches(email *Email, policy UnknownFieldPolicy) bool {
	if r.Invalid != nil {
		return false
	}
	for _, c := range r.Conditions {
		if !c.Evaluate(email, policy) {
			return false
		}
	}
	return true
}

// ValidationError describes rule input that must not be stored.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s", e.Reason)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
