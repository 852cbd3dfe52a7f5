package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator(t *testing.T) {
	t.Run("ValidateRequired", func(t *testing.T) {
		v := NewValidator()

		assert.False(t, v.ValidateRequired("field", ""))
		assert.False(t, v.ValidateRequired("field", "   "))
		assert.True(t, v.ValidateRequired("field", "value"))
		assert.True(t, v.HasErrors())
		assert.Len(t, v.Errors(), 2)
	})

	t.Run("ValidateMaxLength", func(t *testing.T) {
		v := NewValidator()

		assert.True(t, v.ValidateMaxLength("field", "hello", 10))
		assert.False(t, v.ValidateMaxLength("field", "hello world", 5))
		assert.True(t, v.ValidateMaxLength("field", "👋🌍", 2)) // Unicode handling
	})

	t.Run("ValidateMinLength", func(t *testing.T) {
		v := NewValidator()

		assert.True(t, v.ValidateMinLength("field", "hello", 3))
		assert.False(t, v.ValidateMinLength("field", "hi", 3))
		assert.True(t, v.ValidateMinLength("field", "👋🌍", 2)) // Unicode handling
	})

	t.Run("ValidateEmail", func(t *testing.T) {
		v := NewValidator()

		assert.True(t, v.ValidateEmail("email", "user@example.com"))
		assert.True(t, v.ValidateEmail("email", "User Name <user@example.com>"))
		assert.False(t, v.ValidateEmail("email", "not-an-email"))
		assert.False(t, v.ValidateEmail("email", "@example.com"))
	})

	t.Run("ValidateMediaKind", func(t *testing.T) {
		v := NewValidator()

		assert.True(t, v.ValidateMediaKind("media_kind", MediaKindMovie))
		assert.True(t, v.ValidateMediaKind("media_kind", MediaKindTV))
		assert.False(t, v.ValidateMediaKind("media_kind", "anime"))
		assert.False(t, v.ValidateMediaKind("media_kind", ""))
		assert.False(t, v.ValidateMediaKind("media_kind", "Movie"))
	})

	t.Run("Errors is nil when clean", func(t *testing.T) {
		v := NewValidator()
		v.ValidateRequired("field", "value")
		assert.Nil(t, v.Errors())
	})
}

func TestValidateTopicForm(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		prompt    string
		mediaKind string
		wantError bool
	}{
		{
			name:      "valid input",
			title:     "Fight Club",
			prompt:    "What did everyone make of the ending?",
			mediaKind: MediaKindMovie,
			wantError: false,
		},
		{
			name:      "prompt at minimum length",
			title:     "Fight Club",
			prompt:    "12345",
			mediaKind: MediaKindMovie,
			wantError: false,
		},
		{
			name:      "ten character prompt",
			title:     "Fight Club",
			prompt:    "Thoughts?!",
			mediaKind: MediaKindTV,
			wantError: false,
		},
		{
			name:      "short prompt",
			title:     "Fight Club",
			prompt:    "Hi",
			mediaKind: MediaKindMovie,
			wantError: true,
		},
		{
			name:      "empty title",
			title:     "",
			prompt:    "What did everyone make of the ending?",
			mediaKind: MediaKindMovie,
			wantError: true,
		},
		{
			name:      "long title",
			title:     strings.Repeat("a", MaxTopicTitleLength+1),
			prompt:    "What did everyone make of the ending?",
			mediaKind: MediaKindMovie,
			wantError: true,
		},
		{
			name:      "long prompt",
			title:     "Fight Club",
			prompt:    strings.Repeat("a", MaxPromptLength+1),
			mediaKind: MediaKindMovie,
			wantError: true,
		},
		{
			name:      "bad media kind",
			title:     "Fight Club",
			prompt:    "What did everyone make of the ending?",
			mediaKind: "podcast",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateTopicForm(tt.title, tt.prompt, tt.mediaKind)
			if tt.wantError {
				assert.NotNil(t, errs)
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}

func TestValidatePostForm(t *testing.T) {
	assert.Nil(t, ValidatePostForm("A perfectly fine reply."))
	assert.Nil(t, ValidatePostForm("k"))
	assert.NotNil(t, ValidatePostForm(""))
	assert.NotNil(t, ValidatePostForm("   "))
	assert.NotNil(t, ValidatePostForm(strings.Repeat("a", MaxBodyLength+1)))
}

func TestValidateRegisterForm(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		displayName string
		password    string
		wantError   bool
	}{
		{"valid input", "user@example.com", "Film Fan", "correcthorse", false},
		{"bad email", "not-an-email", "Film Fan", "correcthorse", true},
		{"empty display name", "user@example.com", "", "correcthorse", true},
		{"short password", "user@example.com", "Film Fan", "short", true},
		{"long password", "user@example.com", "Film Fan", strings.Repeat("a", MaxPasswordLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateRegisterForm(tt.email, tt.displayName, tt.password)
			if tt.wantError {
				assert.NotNil(t, errs)
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a\nb", SanitizeInput("a\r\nb"))
	assert.Equal(t, "a\nb", SanitizeInput("a\rb"))
	assert.Equal(t, "a\n\nb", SanitizeInput("a\n\n\n\n\nb"))
	assert.Equal(t, "trimmed", SanitizeInput("  trimmed  "))
	assert.Equal(t, "ab", SanitizeInput("a\x00b"))
}
