package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Gateway used in development and tests.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]User // keyed by username
	messages []Message       // append order
	index    map[string]int  // message id -> position in messages
	orders   []Order
}

var _ Gateway = (*Memory)(nil)

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]User),
		index: make(map[string]int),
	}
}

func (m *Memory) CreateUser(ctx context.Context, user User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Username]; exists {
		return User{}, ErrDuplicateUsername
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.users[user.Username] = user
	return user, nil
}

func (m *Memory) FindUserByUsername(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.index[msg.ID] = len(m.messages)
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *Memory) SoftDeleteMessage(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.index[id]; ok {
		m.messages[pos].Deleted = true
	}
	return nil
}

func (m *Memory) FindMessage(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.index[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m.messages[pos], nil
}

func (m *Memory) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Message, 0, limit)
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if !m.messages[i].Deleted {
			out = append(out, m.messages[i])
		}
	}
	reverse(out)
	return out, nil
}

func (m *Memory) CreateOrder(ctx context.Context, order Order) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	m.orders = append(m.orders, order)
	return order, nil
}

func (m *Memory) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Order{}
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].UserID == userID {
			out = append(out, m.orders[i])
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}
