package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/engine"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

// SettingsStore persists preferences and automation settings
type SettingsStore interface {
	GetPreferences(ctx context.Context) *domain.NotificationPreference
	SavePreferences(ctx context.Context, prefs *domain.NotificationPreference) error
	GetAutomationSettings(ctx context.Context) *domain.AutomationSettings
	SaveAutomationSettings(ctx context.Context, settings *domain.AutomationSettings) error
}

// Reconciler re-applies preferences to every item
type Reconciler interface {
	ReconcileAll(ctx context.Context) error
}

// SweepEngine controls the automation sweep loop
type SweepEngine interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	Sweep(ctx context.Context) (*engine.SweepResult, error)
}

// PreferencesHandler handles notification preferences and automation settings requests
type PreferencesHandler struct {
	store      SettingsStore
	reconciler Reconciler
	engine     SweepEngine
	log        *logger.Logger
}

// NewPreferencesHandler creates a new preferences handler
func NewPreferencesHandler(store SettingsStore, reconciler Reconciler, engine SweepEngine, log *logger.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		store:      store,
		reconciler: reconciler,
		engine:     engine,
		log:        log,
	}
}

// GetPreferences retrieves the notification preferences
func (h *PreferencesHandler) GetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.GetPreferences(c.Request.Context()))
}

// UpdatePreferences replaces the notification preferences and reconciles every item
func (h *PreferencesHandler) UpdatePreferences(c *gin.Context) {
	var prefs domain.NotificationPreference
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return
	}
	if err := prefs.Normalize(); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError(err.Error(), err))
		return
	}

	ctx := c.Request.Context()
	if err := h.store.SavePreferences(ctx, &prefs); err != nil {
		h.log.Error("Failed to update preferences", "error", err)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to update preferences", err))
		return
	}

	response := gin.H{
		"message": "Preferences updated successfully",
		"data":    prefs,
	}
	if err := h.reconciler.ReconcileAll(ctx); err != nil {
		h.log.Error("Failed to reconcile items after preference change", "error", err)
		response["warning"] = "Preferences saved but some items could not be rescheduled"
	}

	c.JSON(http.StatusOK, response)
}

// GetAutomationSettings retrieves the automation settings
func (h *PreferencesHandler) GetAutomationSettings(c *gin.Context) {
	settings := h.store.GetAutomationSettings(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"data":           settings,
		"engine_running": h.engine.Running(),
	})
}

// UpdateAutomationSettings replaces the automation settings and starts or
// stops the sweep engine accordingly
func (h *PreferencesHandler) UpdateAutomationSettings(c *gin.Context) {
	var settings domain.AutomationSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid request", err))
		return
	}
	if err := settings.Normalize(); err != nil {
		c.JSON(http.StatusBadRequest, errors.NewValidationError(err.Error(), err))
		return
	}

	ctx := c.Request.Context()
	if err := h.store.SaveAutomationSettings(ctx, &settings); err != nil {
		h.log.Error("Failed to update automation settings", "error", err)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to update automation settings", err))
		return
	}

	if settings.AutoNotifications || settings.AutoGenerateReports {
		if err := h.engine.Start(ctx); err != nil {
			h.log.Error("Failed to start sweep engine", "error", err)
		}
	} else {
		h.engine.Stop()
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Automation settings updated successfully",
		"data":           settings,
		"engine_running": h.engine.Running(),
	})
}

// RunSweep runs one sweep immediately
func (h *PreferencesHandler) RunSweep(c *gin.Context) {
	result, err := h.engine.Sweep(c.Request.Context())
	if err != nil {
		h.log.Error("Sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Sweep failed", err))
		return
	}

	status := http.StatusOK
	if result.Skipped {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}
