package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

const maxPageSize = 100

// ItemLoader loads one item
type ItemLoader interface {
	GetItem(ctx context.Context, kind domain.ItemKind, id string) (domain.TrackableItem, error)
}

// ItemReconciler keeps the triggers of one item current
type ItemReconciler interface {
	ReconcileItem(ctx context.Context, item domain.TrackableItem) error
	CancelItem(ctx context.Context, kind domain.ItemKind, itemID string) error
}

// TriggerLister pages through live triggers
type TriggerLister interface {
	FindPage(ctx context.Context, kind domain.ItemKind, itemID string, page, pageSize int) ([]*domain.ScheduledTrigger, int64, error)
}

// ItemHandler handles per-item trigger requests
type ItemHandler struct {
	items      ItemLoader
	reconciler ItemReconciler
	triggers   TriggerLister
	log        *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(items ItemLoader, reconciler ItemReconciler, triggers TriggerLister, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		items:      items,
		reconciler: reconciler,
		triggers:   triggers,
		log:        log,
	}
}

// ReconcileItem reschedules the triggers of one item
func (h *ItemHandler) ReconcileItem(c *gin.Context) {
	kind, id, ok := itemParams(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	item, err := h.items.GetItem(ctx, kind, id)
	if errors.HasCode(err, errors.CodeNotFound) {
		c.JSON(http.StatusNotFound, errors.NewNotFoundError("Item not found", err))
		return
	}
	if err != nil {
		h.log.Error("Failed to load item", "error", err, "item_kind", kind, "item_id", id)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to load item", err))
		return
	}

	if err := h.reconciler.ReconcileItem(ctx, item); err != nil {
		h.log.Error("Failed to reconcile item", "error", err, "item_kind", kind, "item_id", id)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to reconcile item", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item triggers reconciled"})
}

// CancelItem removes every trigger of one item
func (h *ItemHandler) CancelItem(c *gin.Context) {
	kind, id, ok := itemParams(c)
	if !ok {
		return
	}

	if err := h.reconciler.CancelItem(c.Request.Context(), kind, id); err != nil {
		h.log.Error("Failed to cancel item triggers", "error", err, "item_kind", kind, "item_id", id)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to cancel item triggers", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item triggers cancelled"})
}

// GetTriggers lists live triggers
func (h *ItemHandler) GetTriggers(c *gin.Context) {
	kind := domain.ItemKind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid item kind", nil))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = 20
	}

	triggers, total, err := h.triggers.FindPage(c.Request.Context(), kind, c.Query("item_id"), page, pageSize)
	if err != nil {
		h.log.Error("Failed to get triggers", "error", err)
		c.JSON(http.StatusInternalServerError, errors.NewInternalError("Failed to get triggers", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      triggers,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func itemParams(c *gin.Context) (domain.ItemKind, string, bool) {
	kind := domain.ItemKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, errors.NewValidationError("Invalid item kind", nil))
		return "", "", false
	}
	return kind, c.Param("id"), true
}
