package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hichat/internal/app/db"
)

// Postgres is the relational Gateway backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Gateway = (*Postgres)(nil)

// NewPostgres wraps an initialized pool; see db.NewPool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) CreateUser(ctx context.Context, user User) (User, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, user.ID, user.Username, user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("postgres: create user: %w", err)
	}
	return user, nil
}

func (p *Postgres) FindUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("postgres: find user: %w", err)
	}
	return u, nil
}

func (p *Postgres) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, author_id, author, text, ts)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.AuthorID, msg.Author, msg.Text, msg.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("postgres: append message: %w", err)
	}
	return msg, nil
}

func (p *Postgres) SoftDeleteMessage(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `UPDATE messages SET deleted = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete message: %w", err)
	}
	return nil
}

func (p *Postgres) FindMessage(ctx context.Context, id string) (Message, error) {
	var m Message
	err := p.pool.QueryRow(ctx, `
		SELECT id, author_id, author, text, ts, deleted
		FROM messages
		WHERE id = $1
	`, id).Scan(&m.ID, &m.AuthorID, &m.Author, &m.Text, &m.Timestamp, &m.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("postgres: find message: %w", err)
	}
	return m, nil
}

func (p *Postgres) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, author_id, author, text, ts
		FROM messages
		WHERE NOT deleted
		ORDER BY ts DESC, seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.Author, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent messages: %w", err)
	}

	reverse(msgs)
	return msgs, nil
}

func (p *Postgres) CreateOrder(ctx context.Context, order Order) (Order, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, username, item, quantity, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, order.ID, order.UserID, order.Username, order.Item, order.Quantity, order.Note).Scan(&order.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("postgres: create order: %w", err)
	}
	return order, nil
}

func (p *Postgres) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, username, item, quantity, note, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Username, &o.Item, &o.Quantity, &o.Note, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
