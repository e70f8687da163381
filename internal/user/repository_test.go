package user

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	if errors.Is(ErrNotFound, ErrAlreadyExists) {
		t.Error("ErrNotFound and ErrAlreadyExists must be distinct")
	}
}

func TestCreateParamsZeroValue(t *testing.T) {
	t.Parallel()

	var p CreateParams
	if p.Email != "" || p.Username != "" || p.PasswordHash != "" {
		t.Error("CreateParams zero value should have empty strings")
	}
}
