package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	apperrors "github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/mongodb"
)

const (
	extinguishersCollection = "extinguishers"
	equipmentCollection     = "equipment"
	facilitiesCollection    = "facilities"
)

// liveFilter excludes decommissioned items
var liveFilter = bson.M{"status": bson.M{"$ne": domain.ItemStatusDecommissioned}}

// ItemRepository reads trackable items from the inventory collections
type ItemRepository struct {
	client *mongodb.MongoClient
}

// NewItemRepository creates a new item repository
func NewItemRepository(client *mongodb.MongoClient) *ItemRepository {
	return &ItemRepository{client: client}
}

// ListExtinguishers lists every live extinguisher
func (r *ItemRepository) ListExtinguishers(ctx context.Context) ([]*domain.Extinguisher, error) {
	var items []*domain.Extinguisher
	if err := r.findAll(ctx, extinguishersCollection, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListEquipment lists every live piece of equipment
func (r *ItemRepository) ListEquipment(ctx context.Context) ([]*domain.Equipment, error) {
	var items []*domain.Equipment
	if err := r.findAll(ctx, equipmentCollection, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListFacilities lists every live facility inspection
func (r *ItemRepository) ListFacilities(ctx context.Context) ([]*domain.FacilityInspection, error) {
	var items []*domain.FacilityInspection
	if err := r.findAll(ctx, facilitiesCollection, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListItems lists every live item of one kind
func (r *ItemRepository) ListItems(ctx context.Context, kind domain.ItemKind) ([]domain.TrackableItem, error) {
	switch kind {
	case domain.ItemKindExtinguisher:
		items, err := r.ListExtinguishers(ctx)
		return toTrackable(items), err
	case domain.ItemKindEquipment:
		items, err := r.ListEquipment(ctx)
		return toTrackable(items), err
	case domain.ItemKindFacility:
		items, err := r.ListFacilities(ctx)
		return toTrackable(items), err
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("unknown item kind %q", kind), nil)
}

// GetItem loads one item by kind and id
func (r *ItemRepository) GetItem(ctx context.Context, kind domain.ItemKind, id string) (domain.TrackableItem, error) {
	var (
		item       domain.TrackableItem
		collection string
	)
	switch kind {
	case domain.ItemKindExtinguisher:
		item, collection = &domain.Extinguisher{}, extinguishersCollection
	case domain.ItemKindEquipment:
		item, collection = &domain.Equipment{}, equipmentCollection
	case domain.ItemKindFacility:
		item, collection = &domain.FacilityInspection{}, facilitiesCollection
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown item kind %q", kind), nil)
	}

	err := r.client.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s %s not found", kind, id), err)
	}
	if err != nil {
		return nil, apperrors.NewDataSourceError(fmt.Sprintf("failed to load %s %s", kind, id), err)
	}
	return item, nil
}

func (r *ItemRepository) findAll(ctx context.Context, collection string, out interface{}) error {
	cursor, err := r.client.Collection(collection).Find(ctx, liveFilter)
	if err != nil {
		return apperrors.NewDataSourceError("failed to query "+collection, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return apperrors.NewDataSourceError("failed to decode "+collection, err)
	}
	return nil
}

func toTrackable[T domain.TrackableItem](items []T) []domain.TrackableItem {
	out := make([]domain.TrackableItem, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
