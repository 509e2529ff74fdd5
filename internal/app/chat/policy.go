package chat

import (
	"context"
	"errors"
	"strings"

	"hichat/internal/app/user"
	"hichat/internal/pkg/randx"
)

// ErrRenameNotAllowed is returned by policies whose display names are fixed by the account.
var ErrRenameNotAllowed = errors.New("chat: display name is bound to the account")

// IdentityPolicy decides how a connection gets its identity.
type IdentityPolicy interface {
	// Connect returns the identity a new connection starts with. When ok is false
	// the session stays unauthenticated until Authenticate succeeds.
	Connect(connID string) (id user.Identity, ok bool)

	// Authenticate resolves a client-supplied credential.
	Authenticate(ctx context.Context, connID, credential string) (user.Identity, error)

	// Rename applies a setName request to the current identity.
	Rename(current user.Identity, name string) (user.Identity, error)
}

// Verifier checks a signed credential. *identity.Service implements it.
type Verifier interface {
	Verify(token string) (user.Identity, error)
}

// VerifiedAccountIdentity accepts only credentials issued to registered accounts.
type VerifiedAccountIdentity struct {
	verifier Verifier
}

func NewVerifiedAccountIdentity(v Verifier) *VerifiedAccountIdentity {
	return &VerifiedAccountIdentity{verifier: v}
}

func (p *VerifiedAccountIdentity) Connect(string) (user.Identity, bool) {
	return user.Identity{}, false
}

func (p *VerifiedAccountIdentity) Authenticate(ctx context.Context, _ string, credential string) (user.Identity, error) {
	if err := ctx.Err(); err != nil {
		return user.Identity{}, err
	}
	return p.verifier.Verify(strings.TrimSpace(credential))
}

func (p *VerifiedAccountIdentity) Rename(user.Identity, string) (user.Identity, error) {
	return user.Identity{}, ErrRenameNotAllowed
}

// AnonymousNameClaim lets anyone chat under a self-chosen name; the last claim wins.
// Sessions are active from the moment they connect, under a random guest name.
type AnonymousNameClaim struct{}

func (AnonymousNameClaim) Connect(connID string) (user.Identity, bool) {
	return user.Identity{ID: connID, Username: guestName(connID), Guest: true}, true
}

func (AnonymousNameClaim) Authenticate(_ context.Context, connID, credential string) (user.Identity, error) {
	name, err := user.NormalizeDisplayName(credential)
	if err != nil {
		return user.Identity{}, err
	}
	return user.Identity{ID: connID, Username: name, Guest: true}, nil
}

// Rename falls back to a fresh guest name when name is blank.
func (AnonymousNameClaim) Rename(current user.Identity, name string) (user.Identity, error) {
	if strings.TrimSpace(name) == "" {
		current.Username = guestName(current.ID)
		return current, nil
	}

	normalized, err := user.NormalizeDisplayName(name)
	if err != nil {
		return user.Identity{}, err
	}
	current.Username = normalized
	return current, nil
}

func guestName(connID string) string {
	name, err := randx.GuestName()
	if err != nil {
		return randx.GuestNamePrefix + strings.TrimPrefix(connID, "conn_")
	}
	return name
}
