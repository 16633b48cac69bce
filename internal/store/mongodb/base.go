// Package mongodb mirrors the entity store into MongoDB for durable edge
// deployments. Documents are keyed by the entity's natural id, so every
// write is an idempotent upsert.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

type entity interface {
	CollectionName() string
	Key() string
}

type baseRepo[E entity] struct {
	coll *mongo.Collection
}

func newBaseRepo[E entity](db *mongo.Database) baseRepo[E] {
	var e E
	return baseRepo[E]{coll: db.Collection(e.CollectionName())}
}

func (r *baseRepo[E]) FindByKey(ctx context.Context, key string) (*E, error) {
	var e E
	err := r.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one: %w", err)
	}
	return &e, nil
}

func (r *baseRepo[E]) FindOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*E, error) {
	var e E
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one: %w", err)
	}
	return &e, nil
}

func (r *baseRepo[E]) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]E, error) {
	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	var entities []E
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, fmt.Errorf("cursor all: %w", err)
	}
	return entities, nil
}

// UpsertByKey replaces the whole document under the entity's natural key.
// Replaying the same entity is a no-op, which is what makes out-of-order
// and duplicated delivery safe at the persistence layer.
func (r *baseRepo[E]) UpsertByKey(ctx context.Context, e E) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": e.Key()}, e, opts); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", e.CollectionName(), e.Key(), err)
	}
	return nil
}

func (r *baseRepo[E]) UpdateByKey(ctx context.Context, key string, set bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *baseRepo[E]) UpdateMany(ctx context.Context, filter, set bson.M) error {
	if _, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("update many: %w", err)
	}
	return nil
}

func (r *baseRepo[E]) DeleteByKey(ctx context.Context, key string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if result.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

var errStop = errors.New("stop")

func (r *baseRepo[E]) Iterate(ctx context.Context, filter bson.M, fn func(E) error, opts ...*options.FindOptions) error {
	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}

	for cursor.Next(ctx) {
		var e E
		if err := cursor.Decode(&e); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		err := fn(e)
		if errors.Is(err, errStop) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return cursor.Err()
}
