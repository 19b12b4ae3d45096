package domain

import (
	"fmt"
	"sort"
	"time"
)

// NotificationPreference represents user notification preferences
type NotificationPreference struct {
	OwnerID         string    `json:"-" bson:"_id"`
	PushEnabled     bool      `json:"push_enabled" bson:"push_enabled"`
	EmailEnabled    bool      `json:"email_enabled" bson:"email_enabled"`
	DaysBefore      []int     `json:"days_before" bson:"days_before"`
	ImmediateAlerts bool      `json:"immediate_alerts" bson:"immediate_alerts"`
	DailySummary    bool      `json:"daily_summary" bson:"daily_summary"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

// DefaultNotificationPreference returns the preferences used before anything was saved
func DefaultNotificationPreference(ownerID string) *NotificationPreference {
	return &NotificationPreference{
		OwnerID:         ownerID,
		PushEnabled:     true,
		EmailEnabled:    false,
		DaysBefore:      []int{30, 14, 7, 3, 1},
		ImmediateAlerts: true,
		DailySummary:    false,
	}
}

// Normalize validates the lead-time offsets and sorts them descending
func (p *NotificationPreference) Normalize() error {
	offsets, err := NormalizeOffsets(p.DaysBefore)
	if err != nil {
		return err
	}
	p.DaysBefore = offsets
	return nil
}

// ReportSchedule is the cadence of automatic report generation
type ReportSchedule string

const (
	ReportScheduleDaily   ReportSchedule = "daily"
	ReportScheduleWeekly  ReportSchedule = "weekly"
	ReportScheduleMonthly ReportSchedule = "monthly"
)

// Days returns the minimum number of whole days between two reports
func (s ReportSchedule) Days() int {
	switch s {
	case ReportScheduleDaily:
		return 1
	case ReportScheduleWeekly:
		return 7
	case ReportScheduleMonthly:
		return 30
	}
	return 0
}

// Valid reports whether s is a known schedule
func (s ReportSchedule) Valid() bool {
	return s.Days() > 0
}

// AutomationSettings controls the sweep engine
type AutomationSettings struct {
	OwnerID              string         `json:"-" bson:"_id"`
	AutoNotifications    bool           `json:"auto_notifications" bson:"auto_notifications"`
	NotifyOnExpired      bool           `json:"notify_on_expired" bson:"notify_on_expired"`
	NotifyOnUpcoming     bool           `json:"notify_on_upcoming" bson:"notify_on_upcoming"`
	NotifyOnDecommission bool           `json:"notify_on_decommission" bson:"notify_on_decommission"`
	NotifyDaysBefore     []int          `json:"notify_days_before" bson:"notify_days_before"`
	AutoGenerateReports  bool           `json:"auto_generate_reports" bson:"auto_generate_reports"`
	ReportSchedule       ReportSchedule `json:"report_schedule" bson:"report_schedule"`
	ReportTypes          []ReportType   `json:"report_types" bson:"report_types"`
	UpdatedAt            time.Time      `json:"updated_at" bson:"updated_at"`
}

// DefaultAutomationSettings returns the settings used before anything was saved
func DefaultAutomationSettings(ownerID string) *AutomationSettings {
	return &AutomationSettings{
		OwnerID:              ownerID,
		AutoNotifications:    true,
		NotifyOnExpired:      true,
		NotifyOnUpcoming:     true,
		NotifyOnDecommission: true,
		NotifyDaysBefore:     []int{30, 7, 1},
		AutoGenerateReports:  false,
		ReportSchedule:       ReportScheduleWeekly,
		ReportTypes:          []ReportType{ReportTypeFull},
	}
}

// Normalize validates the settings and canonicalizes offsets and report types
func (s *AutomationSettings) Normalize() error {
	offsets, err := NormalizeOffsets(s.NotifyDaysBefore)
	if err != nil {
		return err
	}
	s.NotifyDaysBefore = offsets

	if s.ReportSchedule == "" {
		s.ReportSchedule = ReportScheduleWeekly
	}
	if !s.ReportSchedule.Valid() {
		return fmt.Errorf("unknown report schedule %q", s.ReportSchedule)
	}

	seen := make(map[ReportType]bool, len(s.ReportTypes))
	types := make([]ReportType, 0, len(s.ReportTypes))
	for _, t := range s.ReportTypes {
		if !t.Valid() {
			return fmt.Errorf("unknown report type %q", t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	s.ReportTypes = types
	return nil
}

// NotifiesOn reports whether daysUntilDue is one of the configured upcoming offsets
func (s *AutomationSettings) NotifiesOn(daysUntilDue int) bool {
	for _, d := range s.NotifyDaysBefore {
		if d == daysUntilDue {
			return true
		}
	}
	return false
}

// NormalizeOffsets rejects non-positive offsets, drops duplicates and sorts descending
func NormalizeOffsets(offsets []int) ([]int, error) {
	seen := make(map[int]bool, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, d := range offsets {
		if d <= 0 {
			return nil, fmt.Errorf("lead-time offset must be positive, got %d", d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}
