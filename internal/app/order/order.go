/*
Package order validates and records food orders placed by registered users.
*/
package order

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"hichat/internal/app/store"
	"hichat/internal/app/user"
	"hichat/internal/pkg/randx"
)

const (
	ItemMaxLength = 100
	MaxQuantity   = 99
	NoteMaxLength = 300
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Input is an order as submitted by the client.
type Input struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
}

// Normalize trims the text fields and checks every rule.
func (in Input) Normalize() (Input, error) {
	in.Item = strings.TrimSpace(in.Item)
	in.Note = strings.TrimSpace(in.Note)

	switch n := utf8.RuneCountInString(in.Item); {
	case n == 0:
		return in, &ValidationError{Field: "item", Reason: "is required"}
	case n > ItemMaxLength:
		return in, &ValidationError{Field: "item", Reason: fmt.Sprintf("must be at most %d characters", ItemMaxLength)}
	}

	if in.Quantity < 1 || in.Quantity > MaxQuantity {
		return in, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must be between 1 and %d", MaxQuantity)}
	}

	if utf8.RuneCountInString(in.Note) > NoteMaxLength {
		return in, &ValidationError{Field: "note", Reason: fmt.Sprintf("must be at most %d characters", NoteMaxLength)}
	}
	return in, nil
}

type Service struct {
	store store.Gateway
	now   func() time.Time
}

func NewService(gw store.Gateway) *Service {
	return &Service{store: gw, now: time.Now}
}

// Place validates in and stores it on behalf of requester.
func (s *Service) Place(ctx context.Context, requester user.Identity, in Input) (store.Order, error) {
	in, err := in.Normalize()
	if err != nil {
		return store.Order{}, err
	}

	o, err := s.store.CreateOrder(ctx, store.Order{
		ID:        randx.OrderID(),
		UserID:    requester.ID,
		Username:  requester.Username,
		Item:      in.Item,
		Quantity:  in.Quantity,
		Note:      in.Note,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return store.Order{}, fmt.Errorf("order: create: %w", err)
	}
	return o, nil
}

// List returns the requester's orders, newest first.
func (s *Service) List(ctx context.Context, requester user.Identity) ([]store.Order, error) {
	orders, err := s.store.ListOrders(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	return orders, nil
}
