/*
Package identity registers accounts, checks passwords and issues and verifies
the signed credentials that the websocket and REST surfaces accept.
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hichat/internal/app/store"
	"hichat/internal/app/user"
	"hichat/internal/pkg/auth/jwt"
	"hichat/internal/pkg/randx"
)

var (
	ErrDuplicateUsername          = errors.New("identity: username already taken")
	ErrInvalidCredentials         = errors.New("identity: invalid username or password")
	ErrInvalidOrExpiredCredential = errors.New("identity: invalid or expired credential")
)

// Credential is what Register and Login hand back to the client.
type Credential struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service owns the account lifecycle. Its only side effect is the user write on Register.
type Service struct {
	store  store.Gateway
	secret string
	ttl    time.Duration
	cost   int

	// dummyHash keeps Login timing similar for unknown users.
	dummyHash []byte
}

// NewService builds a Service that signs credentials with secret.
func NewService(gw store.Gateway, secret string) *Service {
	s := &Service{
		store:  gw,
		secret: secret,
		ttl:    jwt.IdentityExpiration,
		cost:   bcrypt.DefaultCost,
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("hichat-dummy-password"), s.cost)
	return s
}

// Register validates the input, stores a new account and returns a credential for it.
func (s *Service) Register(ctx context.Context, username, password string) (Credential, error) {
	if err := user.ValidateUsername(username); err != nil {
		return Credential{}, err
	}
	if err := user.ValidatePassword(password); err != nil {
		return Credential{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Credential{}, fmt.Errorf("identity: hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, store.User{
		ID:           randx.UserID(),
		Username:     username,
		PasswordHash: string(hash),
	})
	if errors.Is(err, store.ErrDuplicateUsername) {
		return Credential{}, ErrDuplicateUsername
	}
	if err != nil {
		return Credential{}, fmt.Errorf("identity: create user: %w", err)
	}

	return s.issue(user.Identity{ID: u.ID, Username: u.Username})
}

// Login checks username and password and returns a fresh credential.
func (s *Service) Login(ctx context.Context, username, password string) (Credential, error) {
	u, err := s.store.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Credential{}, ErrInvalidCredentials
	}
	if err != nil {
		return Credential{}, fmt.Errorf("identity: find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Credential{}, ErrInvalidCredentials
	}

	return s.issue(user.Identity{ID: u.ID, Username: u.Username})
}

// Verify checks the credential's signature and expiry. It does not touch the store.
func (s *Service) Verify(token string) (user.Identity, error) {
	payload, err := jwt.ParseToken(token, s.secret)
	if err != nil {
		return user.Identity{}, fmt.Errorf("%w: %v", ErrInvalidOrExpiredCredential, err)
	}
	return user.Identity{ID: payload.ID, Username: payload.Username}, nil
}

func (s *Service) issue(id user.Identity) (Credential, error) {
	token, err := jwt.GenerateToken(&jwt.Payload{ID: id.ID, Username: id.Username}, s.secret, s.ttl)
	if err != nil {
		return Credential{}, fmt.Errorf("identity: sign credential: %w", err)
	}
	return Credential{
		Token:     token,
		Username:  id.Username,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}, nil
}
