package domain

import (
	"fmt"
	"strconv"
	"time"
)

// AlertClass distinguishes the reasons an alert is sent
type AlertClass string

const (
	AlertClassReminder     AlertClass = "reminder"
	AlertClassExpired      AlertClass = "expired"
	AlertClassUpcoming     AlertClass = "upcoming"
	AlertClassDecommission AlertClass = "decommission"
)

// AlertPayload carries the ids a client needs to navigate to the item
type AlertPayload struct {
	ItemID     string   `json:"item_id" bson:"item_id"`
	ItemKind   ItemKind `json:"item_kind" bson:"item_kind"`
	FacilityID string   `json:"facility_id,omitempty" bson:"facility_id,omitempty"`
	DaysBefore int      `json:"days_before,omitempty" bson:"days_before,omitempty"`
}

// Alert is a single notification handed to the delivery primitive
type Alert struct {
	Class   AlertClass   `json:"class" bson:"class"`
	Title   string       `json:"title" bson:"title"`
	Body    string       `json:"body" bson:"body"`
	Payload AlertPayload `json:"payload" bson:"payload"`
}

// ScheduledTrigger represents a future point-in-time alert
type ScheduledTrigger struct {
	Key       string    `json:"key" bson:"_id"`
	Version   string    `json:"version" bson:"version"`
	FireAt    time.Time `json:"fire_at" bson:"fire_at"`
	Alert     Alert     `json:"alert" bson:"alert"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// TriggerKey builds the deterministic identity of a lead-time trigger.
// At most one live trigger exists per key.
func TriggerKey(kind ItemKind, itemID string, offsetDays int) string {
	return string(kind) + ":" + itemID + ":" + strconv.Itoa(offsetDays)
}

// AlertLedgerKey builds the dedup identity of an immediate alert for one day
func AlertLedgerKey(class AlertClass, kind ItemKind, itemID string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", class, kind, itemID, day.Format("2006-01-02"))
}

// NewPayload builds the payload for an item alert
func NewPayload(item TrackableItem, offsetDays int) AlertPayload {
	return AlertPayload{
		ItemID:     item.ItemID(),
		ItemKind:   item.Kind(),
		FacilityID: item.FacilityID(),
		DaysBefore: offsetDays,
	}
}
