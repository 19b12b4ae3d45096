package scheduler

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/ledger"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

// fakeDelivery keeps live triggers in a map like the real timer bank
type fakeDelivery struct {
	mu          sync.Mutex
	live        map[string]time.Time
	fired       []domain.Alert
	scheduleErr error
	fireErr     error
	cancelAlls  int
}

func newFakeDelivery() *fakeDelivery {
	return &fakeDelivery{live: make(map[string]time.Time)}
}

func (d *fakeDelivery) ScheduleAt(_ context.Context, key string, fireAt time.Time, _ domain.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scheduleErr != nil {
		return d.scheduleErr
	}
	d.live[key] = fireAt
	return nil
}

func (d *fakeDelivery) Cancel(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, key)
	return nil
}

func (d *fakeDelivery) CancelItem(_ context.Context, kind domain.ItemKind, itemID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prefix := string(kind) + ":" + itemID + ":"
	for key := range d.live {
		if strings.HasPrefix(key, prefix) {
			delete(d.live, key)
		}
	}
	return nil
}

func (d *fakeDelivery) FireNow(_ context.Context, alert domain.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fireErr != nil {
		return d.fireErr
	}
	d.fired = append(d.fired, alert)
	return nil
}

func (d *fakeDelivery) CancelAll(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live = make(map[string]time.Time)
	d.cancelAlls++
	return nil
}

func (d *fakeDelivery) keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.live))
	for k := range d.live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type staticPrefs struct {
	prefs *domain.NotificationPreference
}

func (p *staticPrefs) GetPreferences(context.Context) *domain.NotificationPreference {
	return p.prefs
}

type fakeItems struct {
	items map[domain.ItemKind][]domain.TrackableItem
	errs  map[domain.ItemKind]error
}

func (f *fakeItems) ListItems(_ context.Context, kind domain.ItemKind) ([]domain.TrackableItem, error) {
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	return f.items[kind], nil
}

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func prefsWith(offsets ...int) *domain.NotificationPreference {
	p := domain.DefaultNotificationPreference("default")
	p.DaysBefore = offsets
	return p
}

func extinguisherDueIn(id string, days int) *domain.Extinguisher {
	return &domain.Extinguisher{
		ID:              id,
		ObjectID:        "f1",
		SerialNumber:    "SN-" + id,
		NextServiceDate: domain.CalendarDate(testNow).AddDate(0, 0, days),
		Status:          domain.ItemStatusActive,
	}
}

func newTestScheduler(d *fakeDelivery, prefs *domain.NotificationPreference, items *fakeItems, opts ...Option) *NotificationScheduler {
	if items == nil {
		items = &fakeItems{}
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewNotificationScheduler(d, &staticPrefs{prefs: prefs}, items, logger.NewNop(), opts...)
}

func TestReconcile_OnlyFutureOffsets(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(30, 14, 7, 3, 1)
	s := newTestScheduler(d, prefs, nil)

	require.NoError(t, s.Reconcile(context.Background(), extinguisherDueIn("e1", 10), prefs))

	assert.Equal(t, []string{"extinguisher:e1:1", "extinguisher:e1:3", "extinguisher:e1:7"}, d.keys())
	due := domain.CalendarDate(testNow).AddDate(0, 0, 10)
	assert.Equal(t, due.AddDate(0, 0, -7), d.live["extinguisher:e1:7"])
}

func TestReconcile_Idempotent(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(7, 3, 1)
	s := newTestScheduler(d, prefs, nil)
	item := extinguisherDueIn("e1", 20)
	ctx := context.Background()

	require.NoError(t, s.Reconcile(ctx, item, prefs))
	first := d.keys()
	require.NoError(t, s.Reconcile(ctx, item, prefs))

	assert.Equal(t, first, d.keys())
	assert.Len(t, d.keys(), 3)
}

func TestReconcile_DueInFiveDays(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(7, 3, 1)
	s := newTestScheduler(d, prefs, nil)

	require.NoError(t, s.Reconcile(context.Background(), extinguisherDueIn("e1", 5), prefs))

	assert.Equal(t, []string{"extinguisher:e1:1", "extinguisher:e1:3"}, d.keys())
	assert.Empty(t, d.fired)
}

func TestReconcile_NarrowedPreferencesLeaveNoOrphans(t *testing.T) {
	d := newFakeDelivery()
	s := newTestScheduler(d, prefsWith(1), nil)
	ctx := context.Background()
	item := extinguisherDueIn("e1", 100)

	// Triggers from an earlier configuration
	d.live["extinguisher:e1:90"] = testNow
	d.live["extinguisher:e1:21"] = testNow
	d.live["extinguisher:e1:2"] = testNow

	require.NoError(t, s.Reconcile(ctx, item, prefsWith(1)))
	assert.Equal(t, []string{"extinguisher:e1:1"}, d.keys())
}

func TestReconcile_CustomOffsetRemovedOnNarrowing(t *testing.T) {
	d := newFakeDelivery()
	s := newTestScheduler(d, prefsWith(45, 7), nil)
	ctx := context.Background()
	item := extinguisherDueIn("e1", 60)

	require.NoError(t, s.Reconcile(ctx, item, prefsWith(45, 7)))
	require.Equal(t, []string{"extinguisher:e1:45", "extinguisher:e1:7"}, d.keys())

	require.NoError(t, s.Reconcile(ctx, item, prefsWith(7)))
	assert.Equal(t, []string{"extinguisher:e1:7"}, d.keys())
}

func TestReconcile_PushDisabledCancelsCustomOffsets(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(45, 11)
	s := newTestScheduler(d, prefs, nil)
	ctx := context.Background()
	item := extinguisherDueIn("e1", 60)

	require.NoError(t, s.Reconcile(ctx, item, prefs))
	require.Len(t, d.keys(), 2)

	prefs.PushEnabled = false
	require.NoError(t, s.Reconcile(ctx, item, prefs))
	assert.Empty(t, d.keys())
}

func TestReconcile_PushDisabledCancelsEverything(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(30, 14, 7, 3, 1)
	s := newTestScheduler(d, prefs, nil)
	ctx := context.Background()
	item := extinguisherDueIn("e1", 40)

	require.NoError(t, s.Reconcile(ctx, item, prefs))
	require.Len(t, d.keys(), 5)

	prefs.PushEnabled = false
	require.NoError(t, s.Reconcile(ctx, item, prefs))
	assert.Empty(t, d.keys())
}

func TestReconcile_ExpiredImmediateAlert(t *testing.T) {
	tests := []struct {
		name      string
		immediate bool
		wantFired int
	}{
		{name: "immediate alerts on", immediate: true, wantFired: 1},
		{name: "immediate alerts off", immediate: false, wantFired: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDelivery()
			prefs := prefsWith(7, 1)
			prefs.ImmediateAlerts = tt.immediate
			s := newTestScheduler(d, prefs, nil)

			require.NoError(t, s.Reconcile(context.Background(), extinguisherDueIn("e1", -2), prefs))

			assert.Empty(t, d.keys())
			require.Len(t, d.fired, tt.wantFired)
			if tt.wantFired > 0 {
				assert.Equal(t, domain.AlertClassExpired, d.fired[0].Class)
				assert.Equal(t, "e1", d.fired[0].Payload.ItemID)
			}
		})
	}
}

func TestReconcile_ExpiredAlertDeduplicatedWithLedger(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(7)
	s := newTestScheduler(d, prefs, nil, WithLedger(ledger.NewMemoryLedger(time.Hour)))
	item := extinguisherDueIn("e1", -1)

	require.NoError(t, s.Reconcile(context.Background(), item, prefs))
	require.NoError(t, s.Reconcile(context.Background(), item, prefs))

	assert.Len(t, d.fired, 1)
}

func TestReconcile_DeliveryFailuresAreSwallowed(t *testing.T) {
	d := newFakeDelivery()
	d.scheduleErr = errors.NewDeliveryError("broker down", nil)
	d.fireErr = errors.NewDeliveryError("broker down", nil)
	prefs := prefsWith(7, 3)
	s := newTestScheduler(d, prefs, nil)

	assert.NoError(t, s.Reconcile(context.Background(), extinguisherDueIn("e1", 20), prefs))
	assert.NoError(t, s.Reconcile(context.Background(), extinguisherDueIn("e2", -1), prefs))
}

func TestReconcile_PermissionDeniedSkipsWork(t *testing.T) {
	d := newFakeDelivery()
	d.scheduleErr = errors.ErrPermissionDenied
	prefs := prefsWith(7, 3)
	s := newTestScheduler(d, prefs, nil)

	assert.NoError(t, s.Reconcile(context.Background(), extinguisherDueIn("e1", 20), prefs))
	assert.Empty(t, d.keys())
}

func TestReconcile_ReminderText(t *testing.T) {
	alert := reminderAlert(extinguisherDueIn("e1", 10), 1)
	assert.Equal(t, "Inspection due in 1 day", alert.Title)
	assert.Contains(t, alert.Body, "Extinguisher SN-e1")
	assert.Contains(t, alert.Body, "2026-03-20")
	assert.Equal(t, 1, alert.Payload.DaysBefore)
	assert.Equal(t, "f1", alert.Payload.FacilityID)

	assert.Equal(t, "Inspection due in 7 days", reminderAlert(extinguisherDueIn("e1", 10), 7).Title)
}

func TestCancelItem(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(7, 3, 1)
	s := newTestScheduler(d, prefs, nil)
	ctx := context.Background()

	require.NoError(t, s.Reconcile(ctx, extinguisherDueIn("e1", 20), prefs))
	require.NoError(t, s.Reconcile(ctx, extinguisherDueIn("e2", 20), prefs))
	require.NoError(t, s.CancelItem(ctx, domain.ItemKindExtinguisher, "e1"))

	assert.Equal(t, []string{"extinguisher:e2:1", "extinguisher:e2:3", "extinguisher:e2:7"}, d.keys())
}

func TestReconcileAll(t *testing.T) {
	d := newFakeDelivery()
	prefs := prefsWith(7)
	items := &fakeItems{
		items: map[domain.ItemKind][]domain.TrackableItem{
			domain.ItemKindExtinguisher: {extinguisherDueIn("e1", 20)},
			domain.ItemKindFacility: {&domain.FacilityInspection{
				ID: "f1", Name: "Warehouse", NextInspectionDate: testNow.AddDate(0, 0, 20),
			}},
		},
		errs: map[domain.ItemKind]error{
			domain.ItemKindEquipment: stderrors.New("collection unavailable"),
		},
	}
	s := newTestScheduler(d, prefs, items)

	err := s.ReconcileAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDataSource))
	assert.Equal(t, []string{"extinguisher:e1:7", "facility:f1:7"}, d.keys())

	prefs.PushEnabled = false
	require.NoError(t, s.ReconcileAll(context.Background()))
	assert.Empty(t, d.keys())
	assert.Equal(t, 1, d.cancelAlls)
}
