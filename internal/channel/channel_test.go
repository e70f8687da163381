package channel

import (
	"errors"
	"strings"
	"testing"
)

func new(s string) *string { return &s }

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   *string
		wantErr bool
	}{
		{"nil", nil, false},
		{"3 chars too short", new("abc"), true},
		{"4 chars", new("abcd"), false},
		{"32 chars", new(strings.Repeat("a", 32)), false},
		{"33 chars", new(strings.Repeat("a", 33)), true},
		{"not trimmed, padded over limit", new("  " + strings.Repeat("a", 30) + "  "), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && tt.wantErr && !errors.Is(err, ErrNameLength) {
				t.Errorf("ValidateName(%v) error = %v, want ErrNameLength", tt.input, err)
			}
		})
	}

	t.Run("does not trim", func(t *testing.T) {
		t.Parallel()
		name := new("general")
		if err := ValidateName(name); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *name != "general" {
			t.Errorf("expected unchanged value %q, got %q", "general", *name)
		}
	})
}
