package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JSON Web Token claims issued to registered accounts.
type Payload struct {
	jwt.StandardClaims

	// ID is the account's stable user ID.
	ID string `json:"id"`

	// Username is the account's display name at the time the token was issued.
	Username string `json:"username"`
}
