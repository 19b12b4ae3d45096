package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/metrics"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/rabbitmq"
)

const (
	itemRoutingKey = "item.*"
	consumerTag    = "inspection-alert-service"
	maxBackoff     = 30 * time.Second

	EventItemSaved   = "item.saved"
	EventItemDeleted = "item.deleted"
)

// ItemEvent is published by the inventory service after an item is saved or deleted
type ItemEvent struct {
	Type string          `json:"type"`
	Kind domain.ItemKind `json:"kind"`
	ID   string          `json:"id"`
}

// ItemLoader loads the current state of an item
type ItemLoader interface {
	GetItem(ctx context.Context, kind domain.ItemKind, id string) (domain.TrackableItem, error)
}

// ItemReconciler keeps item triggers current
type ItemReconciler interface {
	ReconcileItem(ctx context.Context, item domain.TrackableItem) error
	CancelItem(ctx context.Context, kind domain.ItemKind, itemID string) error
}

// outcome tells the consumer loop how to settle a message
type outcome int

const (
	outcomeAck outcome = iota
	outcomeReject
	outcomeRetry
)

// EventConsumer consumes item events from RabbitMQ and reconciles the item
type EventConsumer struct {
	client     *rabbitmq.RabbitMQClient
	items      ItemLoader
	reconciler ItemReconciler
	exchange   string
	queue      string
	log        *logger.Logger
}

// NewEventConsumer creates a new event consumer
func NewEventConsumer(client *rabbitmq.RabbitMQClient, exchange, queue string, items ItemLoader, reconciler ItemReconciler, log *logger.Logger) *EventConsumer {
	return &EventConsumer{
		client:     client,
		items:      items,
		reconciler: reconciler,
		exchange:   exchange,
		queue:      queue,
		log:        log.With("queue", queue),
	}
}

// Run consumes until ctx is done, re-subscribing with backoff when the
// subscription drops
func (c *EventConsumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		c.log.Error("Item event consumer stopped, restarting", "error", err, "backoff", backoff.String())
		metrics.ConsumerRestarts.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (c *EventConsumer) consume(ctx context.Context) error {
	c.log.Info("Starting item event consumer", "queue", c.queue)

	if err := c.client.DeclareExchange(c.exchange, "topic"); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := c.client.DeclareQueue(c.queue); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.client.BindQueue(c.queue, itemRoutingKey, c.exchange); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	messages, err := c.client.Consume(ctx, c.queue, consumerTag)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for msg := range messages {
		switch c.handle(ctx, msg.Body) {
		case outcomeAck:
			msg.Ack(false)
		case outcomeReject:
			msg.Nack(false, false) // Don't requeue invalid messages
		case outcomeRetry:
			msg.Nack(false, true) // Requeue for retry
		}
	}

	return fmt.Errorf("delivery channel closed")
}

func (c *EventConsumer) handle(ctx context.Context, body []byte) outcome {
	var event ItemEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.log.Error("Failed to unmarshal item event", "error", err)
		return outcomeReject
	}
	if !event.Kind.Valid() || event.ID == "" {
		c.log.Error("Invalid item event", "type", event.Type, "kind", event.Kind, "id", event.ID)
		return outcomeReject
	}

	var err error
	switch event.Type {
	case EventItemSaved:
		err = c.itemSaved(ctx, event)
	case EventItemDeleted:
		err = c.reconciler.CancelItem(ctx, event.Kind, event.ID)
	default:
		c.log.Warn("Ignoring unknown item event", "type", event.Type)
		return outcomeReject
	}

	if err != nil {
		c.log.Error("Failed to process item event", "error", err, "type", event.Type, "kind", event.Kind, "id", event.ID)
		return outcomeRetry
	}

	c.log.Debug("Item event processed", "type", event.Type, "kind", event.Kind, "id", event.ID)
	return outcomeAck
}

func (c *EventConsumer) itemSaved(ctx context.Context, event ItemEvent) error {
	item, err := c.items.GetItem(ctx, event.Kind, event.ID)
	if errors.HasCode(err, errors.CodeNotFound) {
		// Deleted before we got to it
		return c.reconciler.CancelItem(ctx, event.Kind, event.ID)
	}
	if err != nil {
		return err
	}
	if item.ItemStatus() == domain.ItemStatusDecommissioned {
		return c.reconciler.CancelItem(ctx, event.Kind, event.ID)
	}
	return c.reconciler.ReconcileItem(ctx, item)
}
