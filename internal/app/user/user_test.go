package user

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := map[string]error{
		"al":                    ErrInvalidUsername,
		"alice":                 nil,
		"Alice_99":              nil,
		strings.Repeat("a", 20): nil,
		strings.Repeat("a", 21): ErrInvalidUsername,
		"al ice":                ErrInvalidUsername,
		"álice":                 ErrInvalidUsername,
		"bob-smith":             ErrInvalidUsername,
	}

	for name, want := range tests {
		if got := ValidateUsername(name); !errors.Is(got, want) {
			t.Errorf("ValidateUsername(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestValidatePasswordCountsCharacters(t *testing.T) {
	if err := ValidatePassword("12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("short password accepted")
	}
	// Six multi-byte characters are a valid password even though they exceed six bytes.
	if err := ValidatePassword("пароль"); err != nil {
		t.Fatalf("got %v", err)
	}
	if err := ValidatePassword(strings.Repeat("ж", 50)); err != nil {
		t.Fatalf("50 characters rejected: %v", err)
	}
	if err := ValidatePassword(strings.Repeat("x", 51)); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("51 characters accepted")
	}
}

func TestNormalizeDisplayName(t *testing.T) {
	got, err := NormalizeDisplayName("  Night Owl  ")
	if err != nil || got != "Night Owl" {
		t.Fatalf("got %q, %v", got, err)
	}

	for _, bad := range []string{"", "   ", "tab\tname", strings.Repeat("n", 33)} {
		if _, err := NormalizeDisplayName(bad); !errors.Is(err, ErrInvalidDisplayName) {
			t.Errorf("NormalizeDisplayName(%q) accepted", bad)
		}
	}
}
