package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	apperrors "github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/mongodb"
)

const (
	preferencesCollection = "notification_preferences"
	automationCollection  = "automation_settings"
)

// PreferencesRepository stores the notification preferences and automation
// settings of one owner. Reads never fail: defaults are returned instead.
type PreferencesRepository struct {
	client  *mongodb.MongoClient
	ownerID string
	log     *logger.Logger
}

// NewPreferencesRepository creates a new preferences repository
func NewPreferencesRepository(client *mongodb.MongoClient, ownerID string, log *logger.Logger) *PreferencesRepository {
	return &PreferencesRepository{client: client, ownerID: ownerID, log: log}
}

// GetPreferences retrieves the notification preferences
func (r *PreferencesRepository) GetPreferences(ctx context.Context) *domain.NotificationPreference {
	var prefs domain.NotificationPreference
	err := r.client.Collection(preferencesCollection).FindOne(ctx, bson.M{"_id": r.ownerID}).Decode(&prefs)

	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.DefaultNotificationPreference(r.ownerID)
	}
	if err != nil {
		r.log.Warn("Failed to load notification preferences, using defaults", "error", err, "owner_id", r.ownerID)
		return domain.DefaultNotificationPreference(r.ownerID)
	}
	return &prefs
}

// SavePreferences replaces the notification preferences
func (r *PreferencesRepository) SavePreferences(ctx context.Context, prefs *domain.NotificationPreference) error {
	prefs.OwnerID = r.ownerID
	prefs.UpdatedAt = time.Now()

	opts := options.Replace().SetUpsert(true)
	_, err := r.client.Collection(preferencesCollection).ReplaceOne(ctx, bson.M{"_id": r.ownerID}, prefs, opts)
	if err != nil {
		return apperrors.NewStoreError("failed to save notification preferences", err)
	}
	return nil
}

// GetAutomationSettings retrieves the automation settings
func (r *PreferencesRepository) GetAutomationSettings(ctx context.Context) *domain.AutomationSettings {
	var settings domain.AutomationSettings
	err := r.client.Collection(automationCollection).FindOne(ctx, bson.M{"_id": r.ownerID}).Decode(&settings)

	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.DefaultAutomationSettings(r.ownerID)
	}
	if err != nil {
		r.log.Warn("Failed to load automation settings, using defaults", "error", err, "owner_id", r.ownerID)
		return domain.DefaultAutomationSettings(r.ownerID)
	}
	return &settings
}

// SaveAutomationSettings replaces the automation settings
func (r *PreferencesRepository) SaveAutomationSettings(ctx context.Context, settings *domain.AutomationSettings) error {
	settings.OwnerID = r.ownerID
	settings.UpdatedAt = time.Now()

	opts := options.Replace().SetUpsert(true)
	_, err := r.client.Collection(automationCollection).ReplaceOne(ctx, bson.M{"_id": r.ownerID}, settings, opts)
	if err != nil {
		return apperrors.NewStoreError("failed to save automation settings", err)
	}
	return nil
}
