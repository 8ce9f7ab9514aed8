package server

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCollection = "browser_sessions"

// MongoSessionStore persists browser sessions in a MongoDB collection so
// pending interactions survive restarts.
type MongoSessionStore struct {
	collection *mongo.Collection
}

// NewMongoSessionStore binds the store to the sessions collection.
func NewMongoSessionStore(database *mongo.Database) *MongoSessionStore {
	return &MongoSessionStore{collection: database.Collection(sessionCollection)}
}

// Get retrieves a session by id, dropping it if expired.
func (s *MongoSessionStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	result := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var sess Session
	if err := result.Decode(&sess); err != nil {
		return nil, false, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.Delete(ctx, id)
		return nil, false, nil
	}
	return &sess, true, nil
}

// Save upserts a session document.
func (s *MongoSessionStore) Save(ctx context.Context, sess *Session) error {
	upsert := true
	filter := bson.D{{Key: "_id", Value: sess.ID}}
	_, err := s.collection.ReplaceOne(ctx, filter, sess, &options.ReplaceOptions{Upsert: &upsert})
	return err
}

// Delete removes a session document.
func (s *MongoSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	return err
}
