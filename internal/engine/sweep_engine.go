// Package engine runs the periodic automation sweep: it re-evaluates every
// item against the automation settings, sends immediate alerts and generates
// reports on their cadence.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vhvplatform/go-inspection-alert-service/internal/classifier"
	"github.com/vhvplatform/go-inspection-alert-service/internal/delivery"
	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/ledger"
	"github.com/vhvplatform/go-inspection-alert-service/internal/metrics"
	"github.com/vhvplatform/go-inspection-alert-service/internal/scheduler"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

const DefaultInterval = 6 * time.Hour

// SettingsReader loads the current automation settings
type SettingsReader interface {
	GetAutomationSettings(ctx context.Context) *domain.AutomationSettings
}

// ItemSource lists live items of one category
type ItemSource interface {
	ListItems(ctx context.Context, kind domain.ItemKind) ([]domain.TrackableItem, error)
}

// ReportGenerator produces a report of the given type
type ReportGenerator interface {
	Generate(ctx context.Context, reportType domain.ReportType) (*domain.ReportArtifact, error)
}

// ReportRunStore persists when each report type was last generated
type ReportRunStore interface {
	LastRuns(ctx context.Context) (map[domain.ReportType]time.Time, error)
	SaveRun(ctx context.Context, run *domain.ReportRun) error
}

// Locker serializes sweeps across replicas. TryLock returns ok=false when
// another holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// Config holds engine configuration
type Config struct {
	OwnerID     string
	Interval    time.Duration
	HorizonDays int
}

// SweepResult summarizes one sweep
type SweepResult struct {
	StartedAt     time.Time           `json:"started_at"`
	Duration      time.Duration       `json:"duration"`
	Skipped       bool                `json:"skipped"`
	ItemsChecked  int                 `json:"items_checked"`
	Expired       int                 `json:"expired"`
	Upcoming      int                 `json:"upcoming"`
	AlertsSent    int                 `json:"alerts_sent"`
	AlertsDeduped int                 `json:"alerts_deduped"`
	Failures      int                 `json:"failures"`
	Reports       []domain.ReportType `json:"reports,omitempty"`
}

// Option configures an AutomationSweepEngine
type Option func(*AutomationSweepEngine)

// WithLedger deduplicates immediate alerts per item, class and day
func WithLedger(l ledger.Ledger) Option {
	return func(e *AutomationSweepEngine) {
		e.guard = ledger.NewGuard(l, e.log)
	}
}

// WithLocker enables the cross-replica sweep lock
func WithLocker(l Locker) Option {
	return func(e *AutomationSweepEngine) {
		e.locker = l
	}
}

// WithReportRunStore persists report timestamps
func WithReportRunStore(s ReportRunStore) Option {
	return func(e *AutomationSweepEngine) {
		e.runs = s
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *AutomationSweepEngine) {
		e.now = now
	}
}

// AutomationSweepEngine is the periodic sweep loop
type AutomationSweepEngine struct {
	cfg       Config
	settings  SettingsReader
	items     ItemSource
	delivery  delivery.Delivery
	reports   ReportGenerator
	runs      ReportRunStore
	locker    Locker
	guard     *ledger.Guard
	log       *logger.Logger
	now       func() time.Time
	sweeping  atomic.Bool
	running   atomic.Bool
	lifecycle sync.Mutex
	cron      *cron.Cron

	mu          sync.Mutex
	lastReports map[domain.ReportType]time.Time
	runsLoaded  bool
}

// NewAutomationSweepEngine creates a new sweep engine
func NewAutomationSweepEngine(cfg Config, settings SettingsReader, items ItemSource, d delivery.Delivery, reports ReportGenerator, log *logger.Logger, opts ...Option) *AutomationSweepEngine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = classifier.DefaultHorizonDays
	}

	e := &AutomationSweepEngine{
		cfg:         cfg,
		settings:    settings,
		items:       items,
		delivery:    d,
		reports:     reports,
		runs:        NewMemoryReportRunStore(),
		log:         log,
		now:         time.Now,
		lastReports: make(map[domain.ReportType]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start arms a sweep every interval and runs one sweep immediately.
// Calling Start on a running engine does nothing. The immediate sweep runs
// outside the lifecycle lock so Stop never waits for it.
func (e *AutomationSweepEngine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.lifecycle.Lock()
	if e.running.Load() {
		e.lifecycle.Unlock()
		return nil
	}

	e.log.Info("Starting automation sweep engine", "interval", e.cfg.Interval.String())

	c := cron.New(cron.WithChain(cron.Recover(e.log.Cron())))
	c.Schedule(cron.Every(e.cfg.Interval), cron.FuncJob(func() {
		if _, err := e.Sweep(context.Background()); err != nil {
			e.log.Error("Scheduled sweep failed", "error", err)
		}
	}))
	c.Start()

	e.cron = c
	e.running.Store(true)
	e.lifecycle.Unlock()

	_, err := e.Sweep(ctx)
	return err
}

// Stop cancels the periodic timer. An in-flight sweep finishes but is not
// re-armed. Scheduled triggers are left alone.
func (e *AutomationSweepEngine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.cron != nil {
		e.cron.Stop()
		e.cron = nil
	}
	if e.running.Swap(false) {
		e.log.Info("Automation sweep engine stopped")
	}
}

// Running reports whether the periodic timer is armed
func (e *AutomationSweepEngine) Running() bool {
	return e.running.Load()
}

// LastReportAt returns when reportType was last generated
func (e *AutomationSweepEngine) LastReportAt(reportType domain.ReportType) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lastReports[reportType]
	return t, ok
}

// Sweep evaluates every item once. A sweep requested while another is in
// flight returns a skipped result.
func (e *AutomationSweepEngine) Sweep(ctx context.Context) (*SweepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &SweepResult{StartedAt: e.now()}

	if !e.sweeping.CompareAndSwap(false, true) {
		e.log.Debug("Sweep already in progress, skipping")
		metrics.SweepsRun.WithLabelValues("skipped").Inc()
		result.Skipped = true
		return result, nil
	}
	defer e.sweeping.Store(false)

	if e.locker != nil {
		unlock, ok, err := e.locker.TryLock(ctx)
		switch {
		case err != nil:
			e.log.Warn("Sweep lock unavailable, sweeping without it", "error", err)
		case !ok:
			e.log.Info("Another replica is sweeping, skipping")
			metrics.SweepsRun.WithLabelValues("skipped").Inc()
			result.Skipped = true
			return result, nil
		default:
			defer unlock()
		}
	}

	start := time.Now()
	settings := e.settings.GetAutomationSettings(ctx)

	if settings.AutoNotifications {
		for _, kind := range domain.ItemKinds {
			e.sweepCategory(ctx, kind, settings, result)
		}
	}

	if settings.AutoGenerateReports {
		e.generateDueReports(ctx, settings, result)
	}

	result.Duration = time.Since(start)
	metrics.SweepsRun.WithLabelValues("completed").Inc()
	metrics.SweepDuration.Observe(result.Duration.Seconds())

	e.log.Info("Sweep completed",
		"items", result.ItemsChecked,
		"expired", result.Expired,
		"upcoming", result.Upcoming,
		"alerts_sent", result.AlertsSent,
		"failures", result.Failures,
		"reports", len(result.Reports),
		"duration", result.Duration.String(),
	)
	return result, nil
}

func (e *AutomationSweepEngine) sweepCategory(ctx context.Context, kind domain.ItemKind, settings *domain.AutomationSettings, result *SweepResult) {
	items, err := e.items.ListItems(ctx, kind)
	if err != nil {
		e.log.Error("Failed to load items, skipping category", "error", err, "item_kind", kind)
		result.Failures++
		return
	}

	for _, item := range items {
		if err := e.sweepItem(ctx, item, settings, result); err != nil {
			e.log.Error("Failed to process item", "error", err, "item_kind", kind, "item_id", item.ItemID())
			result.Failures++
		}
	}
}

func (e *AutomationSweepEngine) sweepItem(ctx context.Context, item domain.TrackableItem, settings *domain.AutomationSettings, result *SweepResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	now := e.now()
	result.ItemsChecked++
	c := classifier.ClassifyItem(now, item, e.cfg.HorizonDays)

	var alerts []domain.Alert
	switch c.State {
	case classifier.StateExpired:
		result.Expired++
		if settings.NotifyOnExpired {
			alerts = append(alerts, scheduler.ExpiredAlert(item))
		}
	case classifier.StateUpcoming:
		result.Upcoming++
		if settings.NotifyOnUpcoming && settings.NotifiesOn(c.DaysUntilDue) {
			alerts = append(alerts, upcomingAlert(item, c.DaysUntilDue))
		}
	}

	if item.Kind() == domain.ItemKindEquipment && item.ItemStatus() == domain.ItemStatusExpired && settings.NotifyOnDecommission {
		alerts = append(alerts, decommissionAlert(item))
	}

	var firstErr error
	for _, alert := range alerts {
		alert := alert
		key := domain.AlertLedgerKey(alert.Class, item.Kind(), item.ItemID(), now)
		sent, err := e.guard.Fire(ctx, key, func(ctx context.Context) error {
			return e.delivery.FireNow(ctx, alert)
		})
		switch {
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
		case sent:
			result.AlertsSent++
		default:
			result.AlertsDeduped++
			metrics.AlertsDeduplicated.WithLabelValues(string(alert.Class)).Inc()
		}
	}
	return firstErr
}

func (e *AutomationSweepEngine) generateDueReports(ctx context.Context, settings *domain.AutomationSettings, result *SweepResult) {
	e.loadReportRuns(ctx)

	cadence := settings.ReportSchedule.Days()
	for _, reportType := range settings.ReportTypes {
		now := e.now()
		if last, ok := e.LastReportAt(reportType); ok && wholeDaysBetween(last, now) < cadence {
			continue
		}

		artifact, err := e.generateReport(ctx, reportType)
		if err != nil {
			e.log.Error("Failed to generate report", "error", err, "report_type", reportType)
			metrics.ReportsGenerated.WithLabelValues(string(reportType), "failed").Inc()
			result.Failures++
			continue
		}

		e.mu.Lock()
		e.lastReports[reportType] = now
		e.mu.Unlock()

		run := &domain.ReportRun{
			OwnerID:     e.cfg.OwnerID,
			Type:        reportType,
			GeneratedAt: now,
			Location:    artifact.Location,
		}
		if err := e.runs.SaveRun(ctx, run); err != nil {
			e.log.Warn("Failed to persist report run", "error", err, "report_type", reportType)
		}

		metrics.ReportsGenerated.WithLabelValues(string(reportType), "success").Inc()
		result.Reports = append(result.Reports, reportType)
		e.log.Info("Report generated", "report_type", reportType, "items", artifact.ItemCount, "location", artifact.Location)
	}
}

func (e *AutomationSweepEngine) generateReport(ctx context.Context, reportType domain.ReportType) (artifact *domain.ReportArtifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.reports.Generate(ctx, reportType)
}

// loadReportRuns seeds the in-memory timestamps once
func (e *AutomationSweepEngine) loadReportRuns(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runsLoaded {
		return
	}

	runs, err := e.runs.LastRuns(ctx)
	if err != nil {
		e.log.Warn("Failed to load report runs", "error", err)
		return
	}
	for reportType, at := range runs {
		if at.After(e.lastReports[reportType]) {
			e.lastReports[reportType] = at
		}
	}
	e.runsLoaded = true
}

func wholeDaysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

func upcomingAlert(item domain.TrackableItem, days int) domain.Alert {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return domain.Alert{
		Class:   domain.AlertClassUpcoming,
		Title:   fmt.Sprintf("Inspection due in %d %s", days, unit),
		Body:    fmt.Sprintf("%s is due for inspection on %s", item.Label(), item.DueDate().Format("2006-01-02")),
		Payload: domain.NewPayload(item, days),
	}
}

func decommissionAlert(item domain.TrackableItem) domain.Alert {
	return domain.Alert{
		Class:   domain.AlertClassDecommission,
		Title:   "Equipment requires decommissioning",
		Body:    fmt.Sprintf("%s has expired and requires decommissioning", item.Label()),
		Payload: domain.NewPayload(item, 0),
	}
}
