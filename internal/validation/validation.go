// Package validation provides field-level request validation helpers.
// Helpers return nil for valid input so callers can collect failures
// without branching on each check.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateUserID returns an error if the value is not a UUID. User IDs
// originate from the identity provider, which issues UUIDs.
func ValidateUserID(field, value string) *ValidationError {
	if _, err := uuid.Parse(value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a valid UUID",
		}
	}
	return nil
}

// ValidateNonNegative returns an error for negative counter values.
func ValidateNonNegative(field string, value *int) *ValidationError {
	if value != nil && *value < 0 {
		return &ValidationError{
			Field:   field,
			Message: "must not be negative",
		}
	}
	return nil
}

// ParseIntInRange parses a query parameter as an integer within
// [min, max], falling back to def when the parameter is absent.
func ParseIntInRange(field, raw string, def, min, max int) (int, *ValidationError) {
	v := def
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, &ValidationError{
				Field:   field,
				Message: "must be an integer",
			}
		}
		v = parsed
	}
	if v < min || v > max {
		return 0, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d", min, max),
		}
	}
	return v, nil
}
