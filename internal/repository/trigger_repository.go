package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/mongodb"
)

const scheduledTriggersCollection = "scheduled_triggers"

// TriggerRepository persists live lead-time triggers keyed by trigger key
type TriggerRepository struct {
	client *mongodb.MongoClient
}

// NewTriggerRepository creates a new repository
func NewTriggerRepository(client *mongodb.MongoClient) *TriggerRepository {
	return &TriggerRepository{client: client}
}

// EnsureIndexes creates necessary indexes for optimal query performance
func (r *TriggerRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fire_at", Value: 1}},
			Options: options.Index().SetName("fire_at_idx"),
		},
		{
			Keys: bson.D{
				{Key: "alert.payload.item_kind", Value: 1},
				{Key: "alert.payload.item_id", Value: 1},
			},
			Options: options.Index().SetName("item_idx"),
		},
	}

	return r.client.CreateIndexes(ctx, scheduledTriggersCollection, indexes)
}

// Upsert stores a trigger, replacing any trigger with the same key
func (r *TriggerRepository) Upsert(ctx context.Context, trigger *domain.ScheduledTrigger) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.client.Collection(scheduledTriggersCollection).ReplaceOne(ctx, bson.M{"_id": trigger.Key}, trigger, opts)
	return err
}

// Delete deletes a trigger. Missing keys are not an error.
func (r *TriggerRepository) Delete(ctx context.Context, key string) error {
	_, err := r.client.Collection(scheduledTriggersCollection).DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// DeleteVersion deletes a trigger only if it still holds the given
// registration, so a fired trigger never removes its replacement
func (r *TriggerRepository) DeleteVersion(ctx context.Context, key, version string) error {
	_, err := r.client.Collection(scheduledTriggersCollection).DeleteOne(ctx, bson.M{"_id": key, "version": version})
	return err
}

// DeleteByItem deletes every trigger of one item
func (r *TriggerRepository) DeleteByItem(ctx context.Context, kind domain.ItemKind, itemID string) error {
	filter := bson.M{
		"alert.payload.item_kind": kind,
		"alert.payload.item_id":   itemID,
	}
	_, err := r.client.Collection(scheduledTriggersCollection).DeleteMany(ctx, filter)
	return err
}

// DeleteAll deletes every trigger
func (r *TriggerRepository) DeleteAll(ctx context.Context) error {
	_, err := r.client.Collection(scheduledTriggersCollection).DeleteMany(ctx, bson.M{})
	return err
}

// DeleteBefore deletes triggers whose fire time is not after t
func (r *TriggerRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.client.Collection(scheduledTriggersCollection).DeleteMany(ctx, bson.M{"fire_at": bson.M{"$lte": t}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// FindPending finds every trigger that fires after t
func (r *TriggerRepository) FindPending(ctx context.Context, after time.Time) ([]*domain.ScheduledTrigger, error) {
	filter := bson.M{"fire_at": bson.M{"$gt": after}}
	cursor, err := r.client.Collection(scheduledTriggersCollection).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var triggers []*domain.ScheduledTrigger
	if err = cursor.All(ctx, &triggers); err != nil {
		return nil, err
	}

	return triggers, nil
}

// FindPage lists triggers ordered by fire time, optionally restricted to one item
func (r *TriggerRepository) FindPage(ctx context.Context, kind domain.ItemKind, itemID string, page, pageSize int) ([]*domain.ScheduledTrigger, int64, error) {
	filter := bson.M{}
	if kind != "" {
		filter["alert.payload.item_kind"] = kind
	}
	if itemID != "" {
		filter["alert.payload.item_id"] = itemID
	}

	// Calculate pagination
	skip := (page - 1) * pageSize

	// Use aggregation pipeline for efficient count + results in one query
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$facet", Value: bson.M{
			"metadata": bson.A{bson.M{"$count": "total"}},
			"data": bson.A{
				bson.M{"$sort": bson.M{"fire_at": 1}},
				bson.M{"$skip": skip},
				bson.M{"$limit": pageSize},
			},
		}}},
	}

	cursor, err := r.client.Collection(scheduledTriggersCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	type Result struct {
		Metadata []struct {
			Total int64 `bson:"total"`
		} `bson:"metadata"`
		Data []*domain.ScheduledTrigger `bson:"data"`
	}

	var results []Result
	if err = cursor.All(ctx, &results); err != nil {
		return nil, 0, err
	}

	if len(results) == 0 || len(results[0].Data) == 0 {
		return []*domain.ScheduledTrigger{}, 0, nil
	}

	total := int64(0)
	if len(results[0].Metadata) > 0 {
		total = results[0].Metadata[0].Total
	}

	return results[0].Data, total, nil
}
