// Package scheduler keeps the set of lead-time triggers of each item in line
// with its due date and the user's notification preferences.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/vhvplatform/go-inspection-alert-service/internal/delivery"
	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/ledger"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

// PreferenceReader loads the current notification preferences
type PreferenceReader interface {
	GetPreferences(ctx context.Context) *domain.NotificationPreference
}

// ItemSource lists live items of one category
type ItemSource interface {
	ListItems(ctx context.Context, kind domain.ItemKind) ([]domain.TrackableItem, error)
}

// Option configures a NotificationScheduler
type Option func(*NotificationScheduler)

// WithLedger deduplicates immediate expired alerts
func WithLedger(l ledger.Ledger) Option {
	return func(s *NotificationScheduler) {
		s.guard = ledger.NewGuard(l, s.log)
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *NotificationScheduler) {
		s.now = now
	}
}

// NotificationScheduler reconciles the scheduled triggers of items
type NotificationScheduler struct {
	delivery delivery.Delivery
	prefs    PreferenceReader
	items    ItemSource
	guard    *ledger.Guard
	log      *logger.Logger
	now      func() time.Time
}

// NewNotificationScheduler creates a new notification scheduler
func NewNotificationScheduler(d delivery.Delivery, prefs PreferenceReader, items ItemSource, log *logger.Logger, opts ...Option) *NotificationScheduler {
	s := &NotificationScheduler{
		delivery: d,
		prefs:    prefs,
		items:    items,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile replaces the triggers of item with the set implied by prefs.
// Delivery failures are logged and swallowed. If delivery is not permitted
// the remaining work is skipped.
func (s *NotificationScheduler) Reconcile(ctx context.Context, item domain.TrackableItem, prefs *domain.NotificationPreference) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.cancelItem(ctx, item.Kind(), item.ItemID()) {
		return nil
	}
	if !prefs.PushEnabled {
		return nil
	}

	now := s.now()
	due := item.DueDate()

	for _, offset := range prefs.DaysBefore {
		fireAt := due.AddDate(0, 0, -offset)
		if !fireAt.After(now) {
			continue
		}

		key := domain.TriggerKey(item.Kind(), item.ItemID(), offset)
		err := s.delivery.ScheduleAt(ctx, key, fireAt, reminderAlert(item, offset))
		if stderrors.Is(err, errors.ErrPermissionDenied) {
			s.log.Warn("Push delivery not permitted, skipping reconcile", "item_kind", item.Kind(), "item_id", item.ItemID())
			return nil
		}
		if err != nil {
			s.log.Error("Failed to schedule reminder", "error", err, "key", key)
		}
	}

	if due.Before(now) && prefs.ImmediateAlerts {
		key := domain.AlertLedgerKey(domain.AlertClassExpired, item.Kind(), item.ItemID(), now)
		_, err := s.guard.Fire(ctx, key, func(ctx context.Context) error {
			return s.delivery.FireNow(ctx, ExpiredAlert(item))
		})
		if stderrors.Is(err, errors.ErrPermissionDenied) {
			s.log.Warn("Push delivery not permitted, expired alert dropped", "item_kind", item.Kind(), "item_id", item.ItemID())
			return nil
		}
		if err != nil {
			s.log.Error("Failed to send expired alert", "error", err, "item_kind", item.Kind(), "item_id", item.ItemID())
		}
	}

	return nil
}

// ReconcileItem reconciles one item against the stored preferences
func (s *NotificationScheduler) ReconcileItem(ctx context.Context, item domain.TrackableItem) error {
	return s.Reconcile(ctx, item, s.prefs.GetPreferences(ctx))
}

// CancelItem removes every trigger of a deleted item
func (s *NotificationScheduler) CancelItem(ctx context.Context, kind domain.ItemKind, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cancelItem(ctx, kind, itemID)
	return nil
}

// ReconcileAll re-applies the stored preferences to every item. With push
// disabled it cancels every trigger. A failing category does not stop the
// others; its error is returned after all categories were processed.
func (s *NotificationScheduler) ReconcileAll(ctx context.Context) error {
	prefs := s.prefs.GetPreferences(ctx)

	if !prefs.PushEnabled {
		err := s.delivery.CancelAll(ctx)
		if stderrors.Is(err, errors.ErrPermissionDenied) {
			return nil
		}
		return err
	}

	var errs []error
	reconciled := 0
	for _, kind := range domain.ItemKinds {
		items, err := s.items.ListItems(ctx, kind)
		if err != nil {
			s.log.Error("Failed to load items", "error", err, "item_kind", kind)
			errs = append(errs, errors.NewDataSourceError(fmt.Sprintf("failed to load %s items", kind), err))
			continue
		}

		for _, item := range items {
			if err := s.Reconcile(ctx, item, prefs); err != nil {
				return err
			}
			reconciled++
		}
	}

	s.log.Info("Reconciled all items", "items", reconciled)
	return stderrors.Join(errs...)
}

// cancelItem cancels every trigger of the item, including offsets that are
// no longer configured. It returns false when delivery is not permitted.
func (s *NotificationScheduler) cancelItem(ctx context.Context, kind domain.ItemKind, itemID string) bool {
	err := s.delivery.CancelItem(ctx, kind, itemID)
	if stderrors.Is(err, errors.ErrPermissionDenied) {
		s.log.Warn("Push delivery not permitted, skipping cancel", "item_kind", kind, "item_id", itemID)
		return false
	}
	if err != nil {
		s.log.Error("Failed to cancel item triggers", "error", err, "item_kind", kind, "item_id", itemID)
	}
	return true
}

func reminderAlert(item domain.TrackableItem, offset int) domain.Alert {
	unit := "days"
	if offset == 1 {
		unit = "day"
	}
	return domain.Alert{
		Class:   domain.AlertClassReminder,
		Title:   fmt.Sprintf("Inspection due in %d %s", offset, unit),
		Body:    fmt.Sprintf("%s is due for inspection on %s", item.Label(), item.DueDate().Format("2006-01-02")),
		Payload: domain.NewPayload(item, offset),
	}
}

// ExpiredAlert builds the immediate alert for an item past its due date
func ExpiredAlert(item domain.TrackableItem) domain.Alert {
	return domain.Alert{
		Class:   domain.AlertClassExpired,
		Title:   "Inspection overdue",
		Body:    fmt.Sprintf("%s was due for inspection on %s", item.Label(), item.DueDate().Format("2006-01-02")),
		Payload: domain.NewPayload(item, 0),
	}
}
