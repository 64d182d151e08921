// Package docstore forwards compact execution summaries to an external
// document store. Writes here are advisory: a failure is reported to the
// caller as a warning and never fails the reconciliation that produced the
// document.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists one summary document and returns its assigned id.
type Store interface {
	Insert(ctx context.Context, doc any) (string, error)
}

// Mongo is the MongoDB-backed Store.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo connects to MongoDB and targets database/collection. The
// connection is verified with a ping before the store is returned.
func NewMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("docstore: uri is required")
	}
	if collection == "" {
		collection = "reconciliation_results"
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	return &Mongo{client: client, coll: client.Database(database).Collection(collection)}, nil
}

// Insert writes one document and returns its object id.
func (m *Mongo) Insert(ctx context.Context, doc any) (string, error) {
	res, err := m.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("docstore: insert: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
