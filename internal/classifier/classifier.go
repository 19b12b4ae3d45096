// Package classifier labels trackable items by how close they are to their
// due date.
package classifier

import (
	"math"
	"time"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
)

// DefaultHorizonDays is the window in which an item counts as upcoming
const DefaultHorizonDays = 30

const day = 24 * time.Hour

// State is the due-date state of an item
type State string

const (
	StateExpired  State = "expired"
	StateUpcoming State = "upcoming"
	StateOK       State = "ok"
)

// Classification is the result of classifying one due date
type Classification struct {
	State        State `json:"state"`
	DaysUntilDue int   `json:"days_until_due"`
}

// Classify computes days-until-due and the state of a due date relative to now.
// Days are rounded up so that anything less than a full day away still
// counts as one day.
func Classify(now, dueDate time.Time, horizonDays int) Classification {
	days := DaysUntil(now, dueDate)

	switch {
	case dueDate.Before(now):
		return Classification{State: StateExpired, DaysUntilDue: days}
	case days >= 0 && days <= horizonDays:
		return Classification{State: StateUpcoming, DaysUntilDue: days}
	default:
		return Classification{State: StateOK, DaysUntilDue: days}
	}
}

// ClassifyItem classifies an item by its due date
func ClassifyItem(now time.Time, item domain.TrackableItem, horizonDays int) Classification {
	return Classify(now, item.DueDate(), horizonDays)
}

// DaysUntil returns ceil((dueDate - now) / 24h)
func DaysUntil(now, dueDate time.Time) int {
	return int(math.Ceil(float64(dueDate.Sub(now)) / float64(day)))
}
