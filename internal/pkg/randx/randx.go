/*
Package randx provides functions for generating cryptographically secure random strings and unique identifiers.

It generates time-ordered message IDs, user and order IDs, and Base62 guest display names.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// GuestNamePrefix prefixes names handed to unauthenticated participants.
	GuestNamePrefix = "Guest_"

	// GuestNameRawLength is the length of the random part of a guest name.
	GuestNameRawLength = 6
)

// Base62 returns a random Base62 string of the given length using crypto/rand.
func Base62(length int) (string, error) {
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// MessageID returns a UUID v7, so IDs sort roughly by creation time.
// It falls back to v4 if the v7 generator fails.
func MessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// UserID returns a random UUID v4 for a new account.
func UserID() string {
	return uuid.NewString()
}

// OrderID returns a time-ordered identifier for a new order.
func OrderID() string {
	return MessageID()
}

// ConnectionID returns a short random identifier for a websocket connection.
func ConnectionID() string {
	id, err := Base62(12)
	if err != nil {
		return uuid.NewString()
	}
	return "conn_" + id
}

// GuestName generates a display name with the "Guest_" prefix and 6 random Base62 characters.
func GuestName() (string, error) {
	raw, err := Base62(GuestNameRawLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate guest name: %w", err)
	}
	return GuestNamePrefix + raw, nil
}
