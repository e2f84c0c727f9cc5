package common

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError names one setting that failed a rule.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s=%q %s", e.Field, fmt.Sprint(e.Value), e.Message)
}

// Validator collects rule failures so every bad setting is reported at once.
type Validator struct {
	failures []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs rules against value and records each failure under name.
func (v *Validator) Field(name string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if msg := rule(value); msg != "" {
			v.failures = append(v.failures, ValidationError{Field: name, Value: value, Message: msg})
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.failures) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.failures
}

// ErrorMessage joins every failure into one line.
func (v *Validator) ErrorMessage() string {
	parts := make([]string, 0, len(v.failures))
	for _, f := range v.failures {
		parts = append(parts, f.Error())
	}
	return strings.Join(parts, "; ")
}

// ValidationRule returns an empty string when value passes, otherwise the failure message.
type ValidationRule func(value any) string

// Required rejects blank strings, empty lists and nil.
func Required(value any) string {
	switch v := value.(type) {
	case nil:
		return "is required"
	case string:
		if strings.TrimSpace(v) == "" {
			return "is required"
		}
	case []string:
		if len(v) == 0 {
			return "is required"
		}
	}
	return ""
}

// OneOf accepts a string value only when it is one of allowed.
func OneOf(allowed ...string) ValidationRule {
	return func(value any) string {
		if s, ok := value.(string); ok && slices.Contains(allowed, s) {
			return ""
		}
		return "must be one of " + strings.Join(allowed, ", ")
	}
}

// Positive accepts integers and durations greater than zero.
func Positive(value any) string {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return ""
		}
	case time.Duration:
		if v > 0 {
			return ""
		}
	}
	return "must be positive"
}

// Port accepts integers in the TCP port range.
func Port(value any) string {
	if n, ok := value.(int); ok && n > 0 && n <= 65535 {
		return ""
	}
	return "must be between 1 and 65535"
}

// ValidateAndReturnError turns collected failures into a CONFIG_ERROR.
func ValidateAndReturnError(v *Validator) error {
	if !v.HasErrors() {
		return nil
	}
	return NewConfigError(v.ErrorMessage(), ErrInvalidInput)
}
