// Package mongo provides a MongoDB-backed session store.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harborlight/navqa/config"
	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/session"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// DefaultConfig returns settings for a local MongoDB.
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "navqa",
		Collection: "sessions",
	}
}

// Store implements session.Store on MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ session.Store = (*Store)(nil)

type mongoTurn struct {
	ID        string         `bson:"id"`
	Role      string         `bson:"role"`
	Content   string         `bson:"content"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

type mongoRecord struct {
	ID        string         `bson:"_id"`
	Turns     []mongoTurn    `bson:"turns"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// New connects and prepares the collection. The context bounds connection
// setup.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := config.ValidateMongo(cfg.URI, cfg.Database, cfg.Collection); err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	index := mongo.IndexModel{Keys: bson.D{{Key: "updated_at", Value: -1}}}
	if _, err := collection.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("create session index: %w", err)
	}

	return &Store{client: client, collection: collection}, nil
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record must have an id", apperrors.ErrInvalidInput)
	}

	doc := mongoRecord{
		ID:        record.ID,
		Metadata:  record.Metadata,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	doc.Turns = make([]mongoTurn, len(record.Turns))
	for i, t := range record.Turns {
		doc.Turns[i] = mongoTurn{
			ID:        t.ID,
			Role:      string(t.Role),
			Content:   t.Content,
			Metadata:  t.Metadata,
			CreatedAt: t.CreatedAt,
		}
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": record.ID}, doc, opts); err != nil {
		return fmt.Errorf("save session to mongodb: %w", err)
	}
	return nil
}

// Load retrieves the record.
func (s *Store) Load(ctx context.Context, id string) (*session.Record, error) {
	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session from mongodb: %w", err)
	}

	record := &session.Record{
		ID:        doc.ID,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	record.Turns = make([]*message.Message, len(doc.Turns))
	for i, t := range doc.Turns {
		record.Turns[i] = &message.Message{
			ID:        t.ID,
			Role:      message.Role(t.Role),
			Content:   t.Content,
			Metadata:  t.Metadata,
			CreatedAt: t.CreatedAt,
		}
	}
	return record, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete session from mongodb: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	return nil
}

// List returns all session ids, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.M{"updated_at": -1})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode session id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(count), nil
}

// Exists reports whether the session is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("check session in mongodb: %w", err)
	}
	return count > 0, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
