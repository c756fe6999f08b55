package registry

import (
	"errors"
	"fmt"
)

// Category normalizes registry failures into a small taxonomy. The engine
// only branches on transient vs terminal; the finer categories feed logs
// and metrics.
type Category string

const (
	// Transient categories: worth retrying with backoff.
	CategoryTimeout     Category = "timeout"
	CategoryRateLimited Category = "rate_limited"
	CategoryOutage      Category = "outage"
	// Captcha interstitials behave like rate limiting: the same request
	// usually succeeds later, so it is classified transient.
	CategoryCaptcha Category = "captcha"

	// Terminal categories: retrying the identical request cannot help.
	CategoryBadRequest     Category = "bad_request"
	CategoryAuthentication Category = "authentication"
	CategoryNotFound       Category = "not_found"
	CategoryBadData        Category = "bad_data"

	CategoryInternal Category = "internal"
)

// FetchError wraps registry failures with normalized categorization.
type FetchError struct {
	Category   Category
	Registry   string
	Message    string
	Underlying error
	Transient  bool
}

func (e *FetchError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry %s [%s]: %s: %v", e.Registry, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("registry %s [%s]: %s", e.Registry, e.Category, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Underlying
}

// NewFetchError builds a FetchError, deriving retryability from the category.
func NewFetchError(category Category, registry, message string, underlying error) *FetchError {
	transient := category == CategoryTimeout ||
		category == CategoryRateLimited ||
		category == CategoryOutage ||
		category == CategoryCaptcha
	return &FetchError{
		Category:   category,
		Registry:   registry,
		Message:    message,
		Underlying: underlying,
		Transient:  transient,
	}
}

// IsTransient reports whether an error is worth retrying. Unclassified
// errors are treated as terminal so a surprise never turns into a retry loop.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// IsTerminal reports whether an error is a classified non-retryable failure.
func IsTerminal(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return !fe.Transient
	}
	return false
}

// ErrorCategory extracts the category from an error.
func ErrorCategory(err error) Category {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return CategoryInternal
}
