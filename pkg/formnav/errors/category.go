// Package errors classifies the failures of navigation listeners and retries
// the ones worth retrying.
//
// A listener failure falls in one of three categories. Transient failures may
// pass on another call and are retried. Permanent failures will not, so the
// router dead-letters them. Rejected failures are deliberate refusals (vetoes)
// and are neither retried nor dead-lettered.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category says how a listener failure is handled.
type Category int

const (
	// CategoryTransient: a timed-out listener or a briefly unavailable journal.
	CategoryTransient Category = iota

	// CategoryPermanent: a listener bug or a payload it cannot handle.
	// Unclassified errors land here.
	CategoryPermanent

	// CategoryRejected: a listener vetoed the event.
	CategoryRejected
)

var categoryNames = [...]string{"transient", "permanent", "rejected"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// CategorizedError attaches a Category to a listener failure.
type CategorizedError struct {
	Err      error
	Category Category

	// Retries is the number of calls made before giving up; zero when the
	// error was classified before any delivery.
	Retries int

	// Context names the operation, e.g. "listener veto" or "journal append".
	Context string
}

func (e *CategorizedError) Error() string {
	msg := e.Err.Error()
	if e.Context != "" {
		msg = e.Context + ": " + msg
	}
	if e.Retries > 1 {
		msg = fmt.Sprintf("%s (%s after %d attempts)", msg, e.Category, e.Retries)
	}
	return msg
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized classifies err.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: category, Context: context}
}

// Transient marks err as worth retrying.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent marks err as not worth retrying.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Rejected marks err as a deliberate refusal.
func Rejected(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryRejected, context)
}

// Categorize returns the category of the outermost CategorizedError in err's
// chain. Timeouts are transient; anything else unclassified is permanent.
func Categorize(err error) Category {
	var ce *CategorizedError
	var te *TimeoutError
	switch {
	case err == nil:
		return CategoryPermanent
	case errors.As(err, &ce):
		return ce.Category
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsRejected reports whether err is a deliberate refusal.
func IsRejected(err error) bool {
	return Categorize(err) == CategoryRejected
}
