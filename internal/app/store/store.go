/*
Package store defines the persistence gateway used by the chat core and the REST handlers.

The Gateway interface is the single contract for users, chat messages and orders. Concrete
adapters (memory, postgres, redis, mongo) are interchangeable; none of them carries chat logic.
*/
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateUsername is returned by CreateUser when the username is already taken.
	ErrDuplicateUsername = errors.New("store: duplicate username")

	// ErrNotFound is returned when a user or message lookup matches nothing.
	ErrNotFound = errors.New("store: not found")
)

// User is a registered account.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// Message is a chat message. A message is never physically removed: Deleted is a tombstone.
type Message struct {
	ID        string `json:"id" bson:"_id"`
	AuthorID  string `json:"userId" bson:"author_id"`
	Author    string `json:"username" bson:"author"`
	Text      string `json:"text" bson:"text"`
	Timestamp int64  `json:"ts" bson:"ts"`
	Deleted   bool   `json:"-" bson:"deleted"`
}

// Order is a food order placed through the order form.
type Order struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"userId" bson:"user_id"`
	Username  string    `json:"username" bson:"username"`
	Item      string    `json:"item" bson:"item"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	Note      string    `json:"note,omitempty" bson:"note"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Gateway is the durable store behind the chat core.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// CreateUser persists a new account. It returns ErrDuplicateUsername if the name exists.
	CreateUser(ctx context.Context, user User) (User, error)

	// FindUserByUsername returns ErrNotFound for unknown names.
	FindUserByUsername(ctx context.Context, username string) (User, error)

	// AppendMessage stores msg as given; the caller assigns ID and Timestamp.
	AppendMessage(ctx context.Context, msg Message) (Message, error)

	// SoftDeleteMessage sets the tombstone. Unknown or already deleted ids are a no-op.
	SoftDeleteMessage(ctx context.Context, id string) error

	// FindMessage returns the message including tombstoned ones, or ErrNotFound.
	FindMessage(ctx context.Context, id string) (Message, error)

	// RecentMessages returns at most limit non-deleted messages, oldest first.
	RecentMessages(ctx context.Context, limit int) ([]Message, error)

	// CreateOrder stores a new order.
	CreateOrder(ctx context.Context, order Order) (Order, error)

	// ListOrders returns the user's orders, newest first.
	ListOrders(ctx context.Context, userID string) ([]Order, error)

	// Ping verifies connectivity with the backing store.
	Ping(ctx context.Context) error

	// Close releases any resources held by the gateway.
	Close() error
}

// reverse flips a newest-first page into oldest-first order.
func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
