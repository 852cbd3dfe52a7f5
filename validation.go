package main

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Validator provides input validation functions
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns the accumulated validation errors, or nil when the input
// passed every check.
func (v *Validator) Errors() ValidationErrors {
	if len(v.errors) == 0 {
		return nil
	}
	return v.errors
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// ValidateRequired validates that a field is not empty
func (v *Validator) ValidateRequired(field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		v.AddError(field, "is required")
		return false
	}
	return true
}

// ValidateMaxLength validates maximum length
func (v *Validator) ValidateMaxLength(field, value string, maxLength int) bool {
	if utf8.RuneCountInString(value) > maxLength {
		v.AddError(field, fmt.Sprintf("must not exceed %d characters", maxLength))
		return false
	}
	return true
}

// ValidateMinLength validates minimum length
func (v *Validator) ValidateMinLength(field, value string, minLength int) bool {
	if utf8.RuneCountInString(value) < minLength {
		v.AddError(field, fmt.Sprintf("must be at least %d characters", minLength))
		return false
	}
	return true
}

// ValidateEmail validates an RFC 5322 address
func (v *Validator) ValidateEmail(field, value string) bool {
	if _, err := mail.ParseAddress(value); err != nil {
		v.AddError(field, "must be a valid email address")
		return false
	}
	return true
}

// ValidateMediaKind validates the external media kind discriminator
func (v *Validator) ValidateMediaKind(field, value string) bool {
	if value != MediaKindMovie && value != MediaKindTV {
		v.AddError(field, fmt.Sprintf("must be %q or %q", MediaKindMovie, MediaKindTV))
		return false
	}
	return true
}

// Form validation constants
const (
	MinPromptLength      = 5
	MaxPromptLength      = 500
	MinBodyLength        = 1
	MaxBodyLength        = 5000
	MaxTopicTitleLength  = 255
	MaxDisplayNameLength = 100
	MinPasswordLength    = 8
	MaxPasswordLength    = 128
)

// ValidateTopicForm validates new topic creation input
func ValidateTopicForm(title, prompt, mediaKind string) ValidationErrors {
	v := NewValidator()

	if v.ValidateRequired("title", title) {
		v.ValidateMaxLength("title", title, MaxTopicTitleLength)
	}

	if v.ValidateRequired("prompt", prompt) {
		v.ValidateMinLength("prompt", prompt, MinPromptLength)
		v.ValidateMaxLength("prompt", prompt, MaxPromptLength)
	}

	v.ValidateMediaKind("media_kind", mediaKind)

	return v.Errors()
}

// ValidatePostForm validates post/reply input
func ValidatePostForm(body string) ValidationErrors {
	v := NewValidator()

	if v.ValidateRequired("body", body) {
		v.ValidateMinLength("body", body, MinBodyLength)
		v.ValidateMaxLength("body", body, MaxBodyLength)
	}

	return v.Errors()
}

// ValidateRegisterForm validates member registration input
func ValidateRegisterForm(email, displayName, password string) ValidationErrors {
	v := NewValidator()

	if v.ValidateRequired("email", email) {
		v.ValidateEmail("email", email)
	}

	if v.ValidateRequired("display_name", displayName) {
		v.ValidateMaxLength("display_name", displayName, MaxDisplayNameLength)
	}

	if v.ValidateRequired("password", password) {
		v.ValidateMinLength("password", password, MinPasswordLength)
		v.ValidateMaxLength("password", password, MaxPasswordLength)
	}

	return v.Errors()
}

// SanitizeInput performs basic input sanitization
func SanitizeInput(input string) string {
	// Normalize line endings: CRLF -> LF, standalone CR -> LF
	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.ReplaceAll(input, "\r", "\n")

	// Trim whitespace
	input = strings.TrimSpace(input)

	// Normalize multiple newlines to max of 2 (allow paragraph breaks)
	newlineRegex := regexp.MustCompile(`\n{3,}`)
	input = newlineRegex.ReplaceAllString(input, "\n\n")

	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	return input
}
