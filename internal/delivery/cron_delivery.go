package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/metrics"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

const fireTimeout = 30 * time.Second

// Delivery is the notification primitive used by the scheduler and the sweep engine
type Delivery interface {
	ScheduleAt(ctx context.Context, key string, fireAt time.Time, alert domain.Alert) error
	Cancel(ctx context.Context, key string) error
	CancelItem(ctx context.Context, kind domain.ItemKind, itemID string) error
	FireNow(ctx context.Context, alert domain.Alert) error
	CancelAll(ctx context.Context) error
}

// Publisher hands an encoded alert to the push gateway
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// TriggerStore persists live triggers so they survive restarts
type TriggerStore interface {
	Upsert(ctx context.Context, trigger *domain.ScheduledTrigger) error
	Delete(ctx context.Context, key string) error
	DeleteVersion(ctx context.Context, key, version string) error
	DeleteByItem(ctx context.Context, kind domain.ItemKind, itemID string) error
	DeleteAll(ctx context.Context) error
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
	FindPending(ctx context.Context, after time.Time) ([]*domain.ScheduledTrigger, error)
}

// Config holds delivery configuration
type Config struct {
	Exchange      string
	RatePerSecond float64
	Burst         int
}

// Message is the wire format published to the push gateway
type Message struct {
	ID      string              `json:"id"`
	Key     string              `json:"key,omitempty"`
	Class   domain.AlertClass   `json:"class"`
	Title   string              `json:"title"`
	Body    string              `json:"body"`
	Payload domain.AlertPayload `json:"payload"`
	SentAt  time.Time           `json:"sent_at"`
}

// CronDelivery keeps one cron entry per live trigger and publishes alerts
// to RabbitMQ when they fire
type CronDelivery struct {
	cron      *cron.Cron
	publisher Publisher
	store     TriggerStore
	limiter   *rate.Limiter
	exchange  string
	log       *logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry // Maps trigger key to its live cron entry
}

// entry is one registered trigger. version identifies the registration so a
// firing entry never removes the one that replaced it.
type entry struct {
	id      cron.EntryID
	version string
	kind    domain.ItemKind
	itemID  string
}

// NewCronDelivery creates a new cron-backed delivery primitive.
// A nil publisher makes every call fail with ErrPermissionDenied.
func NewCronDelivery(cfg Config, publisher Publisher, store TriggerStore, log *logger.Logger) *CronDelivery {
	if cfg.Exchange == "" {
		cfg.Exchange = "inspection_alerts"
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &CronDelivery{
		cron:      cron.New(cron.WithChain(cron.Recover(log.Cron()))),
		publisher: publisher,
		store:     store,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		exchange:  cfg.Exchange,
		log:       log,
		now:       time.Now,
		entries:   make(map[string]entry),
	}
}

// Start drops triggers missed while the service was down, registers the
// pending ones and starts the timer loop
func (d *CronDelivery) Start(ctx context.Context) error {
	d.log.Info("Starting alert delivery")

	now := d.now()
	dropped, err := d.store.DeleteBefore(ctx, now)
	if err != nil {
		return err
	}

	pending, err := d.store.FindPending(ctx, now)
	if err != nil {
		return err
	}

	for _, trigger := range pending {
		d.register(trigger)
	}

	d.cron.Start()
	d.log.Info("Alert delivery started", "pending_triggers", len(pending), "dropped_triggers", dropped)
	return nil
}

// Stop stops the timer loop
func (d *CronDelivery) Stop() {
	d.log.Info("Stopping alert delivery")
	d.cron.Stop()
}

// ScheduleAt registers a trigger that fires at fireAt. Scheduling an existing
// key replaces it.
func (d *CronDelivery) ScheduleAt(ctx context.Context, key string, fireAt time.Time, alert domain.Alert) error {
	if d.publisher == nil {
		return errors.ErrPermissionDenied
	}
	if !fireAt.After(d.now()) {
		return errors.NewValidationError("trigger fire time must be in the future", nil)
	}

	trigger := &domain.ScheduledTrigger{
		Key:       key,
		Version:   uuid.New().String(),
		FireAt:    fireAt,
		Alert:     alert,
		CreatedAt: d.now(),
	}
	if err := d.store.Upsert(ctx, trigger); err != nil {
		return errors.NewDeliveryError("failed to persist trigger", err)
	}

	d.register(trigger)
	metrics.TriggersScheduled.Inc()
	return nil
}

// Cancel removes the trigger with the given key. Unknown keys are ignored.
func (d *CronDelivery) Cancel(ctx context.Context, key string) error {
	if d.unregister(key) {
		metrics.TriggersCancelled.Inc()
	}

	if err := d.store.Delete(ctx, key); err != nil {
		return errors.NewDeliveryError("failed to delete trigger", err)
	}
	return nil
}

// CancelItem removes every trigger of one item, whatever offsets it was
// scheduled with
func (d *CronDelivery) CancelItem(ctx context.Context, kind domain.ItemKind, itemID string) error {
	d.mu.Lock()
	for key, e := range d.entries {
		if e.kind != kind || e.itemID != itemID {
			continue
		}
		d.cron.Remove(e.id)
		delete(d.entries, key)
		metrics.TriggersCancelled.Inc()
	}
	metrics.TriggersLive.Set(float64(len(d.entries)))
	d.mu.Unlock()

	if err := d.store.DeleteByItem(ctx, kind, itemID); err != nil {
		return errors.NewDeliveryError("failed to delete item triggers", err)
	}
	return nil
}

// CancelAll removes every live trigger
func (d *CronDelivery) CancelAll(ctx context.Context) error {
	d.mu.Lock()
	for key, e := range d.entries {
		d.cron.Remove(e.id)
		delete(d.entries, key)
	}
	metrics.TriggersLive.Set(0)
	d.mu.Unlock()

	d.log.Info("Cancelled all scheduled alerts")

	if err := d.store.DeleteAll(ctx); err != nil {
		return errors.NewDeliveryError("failed to delete triggers", err)
	}
	return nil
}

// FireNow publishes an alert immediately
func (d *CronDelivery) FireNow(ctx context.Context, alert domain.Alert) error {
	return d.publish(ctx, "", alert)
}

func (d *CronDelivery) publish(ctx context.Context, key string, alert domain.Alert) error {
	if d.publisher == nil {
		return errors.ErrPermissionDenied
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return errors.NewDeliveryError("rate limiter wait aborted", err)
	}

	body, err := json.Marshal(Message{
		ID:      uuid.New().String(),
		Key:     key,
		Class:   alert.Class,
		Title:   alert.Title,
		Body:    alert.Body,
		Payload: alert.Payload,
		SentAt:  d.now(),
	})
	if err != nil {
		return errors.NewDeliveryError("failed to encode alert", err)
	}

	if err := d.publisher.Publish(d.exchange, "alert."+string(alert.Class), body); err != nil {
		metrics.AlertDeliveryFailures.WithLabelValues(string(alert.Class)).Inc()
		return errors.NewDeliveryError("failed to publish alert", err)
	}

	metrics.AlertsFired.WithLabelValues(string(alert.Class)).Inc()
	return nil
}

// register adds a one-shot cron entry, replacing any previous entry for
// the trigger key
func (d *CronDelivery) register(trigger *domain.ScheduledTrigger) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, exists := d.entries[trigger.Key]; exists {
		d.cron.Remove(prev.id)
	}

	key, version, alert := trigger.Key, trigger.Version, trigger.Alert
	d.entries[key] = entry{
		id: d.cron.Schedule(onceSchedule{at: trigger.FireAt}, cron.FuncJob(func() {
			d.fire(key, version, alert)
		})),
		version: version,
		kind:    alert.Payload.ItemKind,
		itemID:  alert.Payload.ItemID,
	}
	metrics.TriggersLive.Set(float64(len(d.entries)))
}

func (d *CronDelivery) unregister(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, exists := d.entries[key]
	if !exists {
		return false
	}
	d.cron.Remove(e.id)
	delete(d.entries, key)
	metrics.TriggersLive.Set(float64(len(d.entries)))
	return true
}

// release drops the entry of a fired trigger unless it was rescheduled
// while firing
func (d *CronDelivery) release(key, version string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, exists := d.entries[key]; exists && e.version == version {
		d.cron.Remove(e.id)
		delete(d.entries, key)
		metrics.TriggersLive.Set(float64(len(d.entries)))
	}
}

// fire runs on the cron goroutine when a trigger is due
func (d *CronDelivery) fire(key, version string, alert domain.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	d.log.Info("Firing scheduled alert", "key", key, "class", alert.Class)

	if err := d.publish(ctx, key, alert); err != nil {
		d.log.Error("Failed to deliver scheduled alert", "error", err, "key", key)
	}

	d.release(key, version)
	if err := d.store.DeleteVersion(ctx, key, version); err != nil {
		d.log.Error("Failed to delete fired trigger", "error", err, "key", key)
	}
}

// onceSchedule is a cron.Schedule that activates exactly once
type onceSchedule struct {
	at time.Time
}

// Next returns the fire time until it has passed, then the zero time, which
// cron treats as "never"
func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
