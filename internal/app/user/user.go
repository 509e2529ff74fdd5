/*
Package user contains the representation of a chat participant and the rules
that account names and passwords must satisfy.

Identity is what every other component passes around once a connection or an
HTTP request has been attributed to somebody.
*/
package user

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 20
	PasswordMinLength = 6
	PasswordMaxLength = 50

	// DisplayNameMaxLength bounds names claimed by anonymous participants.
	DisplayNameMaxLength = 32
)

var (
	ErrInvalidUsername    = errors.New("username must be 3-20 characters of letters, digits or underscore")
	ErrInvalidPassword    = errors.New("password must be 6-50 characters")
	ErrInvalidDisplayName = errors.New("display name must be 1-32 printable characters")
)

// Identity is the stable user ID plus display name attributed to a participant.
// Fields use JSON tags for serialization in WebSocket messages.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// Guest marks identities that were not backed by a registered account.
	Guest bool `json:"-"`
}

// IsZero reports whether no identity has been attributed.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// ValidateUsername enforces the account name rule.
func ValidateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < UsernameMinLength || n > UsernameMaxLength {
		return ErrInvalidUsername
	}
	for _, r := range name {
		if !isNameRune(r) {
			return ErrInvalidUsername
		}
	}
	return nil
}

// ValidatePassword enforces the password length rule, counted in characters.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < PasswordMinLength || n > PasswordMaxLength {
		return ErrInvalidPassword
	}
	return nil
}

// NormalizeDisplayName trims name and checks it is usable as an anonymous display name.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > DisplayNameMaxLength {
		return "", ErrInvalidDisplayName
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", ErrInvalidDisplayName
		}
	}
	return name, nil
}

func isNameRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
