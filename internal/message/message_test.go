package message

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"valid simple", "hello world", "hello world", nil},
		{"trims whitespace", "  hello  ", "hello", nil},
		{"exact max length", strings.Repeat("a", 1000), strings.Repeat("a", 1000), nil},
		{"multibyte at limit", strings.Repeat("日", 1000), strings.Repeat("日", 1000), nil},
		{"empty after trim", "   ", "", ErrEmptyContent},
		{"empty string", "", "", ErrEmptyContent},
		{"exceeds max length", strings.Repeat("a", 1001), "", ErrContentTooLong},
		{"multibyte exceeds max", strings.Repeat("日", 1001), "", ErrContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ValidateContent(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateContent(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ValidateContent(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input int
		want  int
	}{
		{"zero defaults", 0, DefaultLimit},
		{"negative defaults", -1, DefaultLimit},
		{"within range", 25, 25},
		{"at minimum boundary", 1, 1},
		{"at maximum boundary", MaxLimit, MaxLimit},
		{"exceeds maximum", MaxLimit + 1, MaxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ClampLimit(tt.input); got != tt.want {
				t.Errorf("ClampLimit(%d) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
