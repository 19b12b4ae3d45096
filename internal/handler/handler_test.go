package handler

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/engine"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

type fakeStore struct {
	prefs    *domain.NotificationPreference
	settings *domain.AutomationSettings
	saveErr  error
}

func (s *fakeStore) GetPreferences(context.Context) *domain.NotificationPreference {
	if s.prefs == nil {
		return domain.DefaultNotificationPreference("default")
	}
	return s.prefs
}

func (s *fakeStore) SavePreferences(_ context.Context, p *domain.NotificationPreference) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.prefs = p
	return nil
}

func (s *fakeStore) GetAutomationSettings(context.Context) *domain.AutomationSettings {
	if s.settings == nil {
		return domain.DefaultAutomationSettings("default")
	}
	return s.settings
}

func (s *fakeStore) SaveAutomationSettings(_ context.Context, a *domain.AutomationSettings) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.settings = a
	return nil
}

type fakeScheduler struct {
	reconcileAll int
	reconciled   []string
	cancelled    []string
}

func (f *fakeScheduler) ReconcileAll(context.Context) error {
	f.reconcileAll++
	return nil
}

func (f *fakeScheduler) ReconcileItem(_ context.Context, item domain.TrackableItem) error {
	f.reconciled = append(f.reconciled, item.ItemID())
	return nil
}

func (f *fakeScheduler) CancelItem(_ context.Context, _ domain.ItemKind, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fakeEngine struct {
	running bool
	sweeps  int
}

func (e *fakeEngine) Start(context.Context) error { e.running = true; return nil }
func (e *fakeEngine) Stop()                       { e.running = false }
func (e *fakeEngine) Running() bool               { return e.running }

func (e *fakeEngine) Sweep(context.Context) (*engine.SweepResult, error) {
	e.sweeps++
	return &engine.SweepResult{ItemsChecked: 3}, nil
}

type fakeLoader struct{}

func (fakeLoader) GetItem(_ context.Context, kind domain.ItemKind, id string) (domain.TrackableItem, error) {
	if id == "missing" {
		return nil, errors.NewNotFoundError("not found", nil)
	}
	return &domain.Extinguisher{ID: id}, nil
}

type fakeTriggers struct {
	gotKind domain.ItemKind
	gotPage int
}

func (f *fakeTriggers) FindPage(_ context.Context, kind domain.ItemKind, _ string, page, pageSize int) ([]*domain.ScheduledTrigger, int64, error) {
	f.gotKind, f.gotPage = kind, page
	return []*domain.ScheduledTrigger{{Key: "extinguisher:e1:7"}}, 1, nil
}

type testEnv struct {
	router   *gin.Engine
	store    *fakeStore
	sched    *fakeScheduler
	engine   *fakeEngine
	triggers *fakeTriggers
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		router:   gin.New(),
		store:    &fakeStore{},
		sched:    &fakeScheduler{},
		engine:   &fakeEngine{},
		triggers: &fakeTriggers{},
	}
	log := logger.NewNop()
	RegisterRoutes(env.router.Group("/api/v1"),
		NewPreferencesHandler(env.store, env.sched, env.engine, log),
		NewItemHandler(fakeLoader{}, env.sched, env.triggers, log),
	)
	return env
}

func (env *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestGetPreferences_Defaults(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/v1/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var prefs domain.NotificationPreference
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prefs))
	assert.True(t, prefs.PushEnabled)
	assert.Equal(t, []int{30, 14, 7, 3, 1}, prefs.DaysBefore)
}

func TestUpdatePreferences(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPut, "/api/v1/preferences", map[string]interface{}{
		"push_enabled":     true,
		"days_before":      []int{1, 7, 7},
		"immediate_alerts": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{7, 1}, env.store.prefs.DaysBefore)
	assert.Equal(t, 1, env.sched.reconcileAll)
}

func TestUpdatePreferences_Invalid(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPut, "/api/v1/preferences", map[string]interface{}{"days_before": []int{0}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.sched.reconcileAll)
}

func TestUpdatePreferences_StoreFailure(t *testing.T) {
	env := newTestEnv()
	env.store.saveErr = errors.NewStoreError("write failed", stderrors.New("timeout"))

	w := env.do(http.MethodPut, "/api/v1/preferences", map[string]interface{}{"push_enabled": true})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 0, env.sched.reconcileAll)
}

func TestUpdateAutomationSettings_StartsAndStopsEngine(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPut, "/api/v1/automation", map[string]interface{}{
		"auto_notifications": true,
		"report_schedule":    "daily",
		"report_types":       []string{"expired"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.engine.running)
	assert.Equal(t, domain.ReportScheduleDaily, env.store.settings.ReportSchedule)

	w = env.do(http.MethodPut, "/api/v1/automation", map[string]interface{}{"auto_notifications": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.engine.running)

	w = env.do(http.MethodPut, "/api/v1/automation", map[string]interface{}{"report_types": []string{"monthly"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunSweep(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPost, "/api/v1/automation/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.engine.sweeps)
	assert.Contains(t, w.Body.String(), `"items_checked":3`)
}

func TestItemRoutes(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPost, "/api/v1/items/extinguisher/e1/reconcile", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"e1"}, env.sched.reconciled)

	w = env.do(http.MethodPost, "/api/v1/items/extinguisher/missing/reconcile", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/items/boat/b1/reconcile", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/items/facility/f1/triggers", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"f1"}, env.sched.cancelled)
}

func TestGetTriggers(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/v1/triggers?kind=extinguisher&page=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ItemKindExtinguisher, env.triggers.gotKind)
	assert.Equal(t, 1, env.triggers.gotPage)
	assert.Contains(t, w.Body.String(), "extinguisher:e1:7")

	w = env.do(http.MethodGet, "/api/v1/triggers?kind=boat", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
