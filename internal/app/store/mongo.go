package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is the document-store Gateway. Users, messages and orders live in their own collections.
type Mongo struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
	orders   *mongo.Collection
}

var _ Gateway = (*Mongo)(nil)

// NewMongo connects to uri, selects database and ensures the indexes the gateway relies on.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	dbh := client.Database(database)
	m := &Mongo{
		client:   client,
		users:    dbh.Collection("users"),
		messages: dbh.Collection("messages"),
		orders:   dbh.Collection("orders"),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: users index: %w", err)
	}

	_, err = m.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "ts", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: messages index: %w", err)
	}

	_, err = m.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: orders index: %w", err)
	}
	return nil
}

func (m *Mongo) CreateUser(ctx context.Context, user User) (User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if _, err := m.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("mongo: create user: %w", err)
	}
	return user, nil
}

func (m *Mongo) FindUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := m.users.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("mongo: find user: %w", err)
	}
	return u, nil
}

func (m *Mongo) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if _, err := m.messages.InsertOne(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("mongo: append message: %w", err)
	}
	return msg, nil
}

func (m *Mongo) SoftDeleteMessage(ctx context.Context, id string) error {
	_, err := m.messages.UpdateByID(ctx, id, bson.M{"$set": bson.M{"deleted": true}})
	if err != nil {
		return fmt.Errorf("mongo: delete message: %w", err)
	}
	return nil
}

func (m *Mongo) FindMessage(ctx context.Context, id string) (Message, error) {
	var msg Message
	err := m.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("mongo: find message: %w", err)
	}
	return msg, nil
}

func (m *Mongo) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := m.messages.Find(ctx, bson.M{"deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: recent messages: %w", err)
	}

	msgs := make([]Message, 0, limit)
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("mongo: decode messages: %w", err)
	}

	reverse(msgs)
	return msgs, nil
}

func (m *Mongo) CreateOrder(ctx context.Context, order Order) (Order, error) {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	if _, err := m.orders.InsertOne(ctx, order); err != nil {
		return Order{}, fmt.Errorf("mongo: create order: %w", err)
	}
	return order, nil
}

func (m *Mongo) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := m.orders.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list orders: %w", err)
	}

	orders := []Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("mongo: decode orders: %w", err)
	}
	return orders, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
