package domain

import "time"

// ItemKind identifies the variant of a trackable item
type ItemKind string

const (
	ItemKindExtinguisher ItemKind = "extinguisher"
	ItemKindEquipment    ItemKind = "equipment"
	ItemKindFacility     ItemKind = "facility"
)

// ItemKinds lists every kind in sweep order
var ItemKinds = []ItemKind{ItemKindExtinguisher, ItemKindEquipment, ItemKindFacility}

// Valid reports whether k is a known item kind
func (k ItemKind) Valid() bool {
	switch k {
	case ItemKindExtinguisher, ItemKindEquipment, ItemKindFacility:
		return true
	}
	return false
}

// ItemStatus represents the lifecycle status of a trackable item
type ItemStatus string

const (
	ItemStatusActive         ItemStatus = "active"
	ItemStatusMaintenance    ItemStatus = "maintenance"
	ItemStatusExpired        ItemStatus = "expired"
	ItemStatusDecommissioned ItemStatus = "decommissioned"
)

// TrackableItem is the common projection of every item that carries a due date
type TrackableItem interface {
	Kind() ItemKind
	ItemID() string
	// FacilityID is a lookup-only reference to the owning facility
	FacilityID() string
	// DueDate is the calendar date the next service or inspection is due
	DueDate() time.Time
	ItemStatus() ItemStatus
	Label() string
}

// CalendarDate truncates t to midnight in its own location
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Extinguisher represents a fire extinguisher
type Extinguisher struct {
	ID              string     `json:"id" bson:"_id"`
	ObjectID        string     `json:"object_id" bson:"object_id"`
	SerialNumber    string     `json:"serial_number" bson:"serial_number"`
	Type            string     `json:"type" bson:"type"`
	Location        string     `json:"location,omitempty" bson:"location,omitempty"`
	NextServiceDate time.Time  `json:"next_service_date" bson:"next_service_date"`
	Status          ItemStatus `json:"status" bson:"status"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
}

func (e *Extinguisher) Kind() ItemKind         { return ItemKindExtinguisher }
func (e *Extinguisher) ItemID() string         { return e.ID }
func (e *Extinguisher) FacilityID() string     { return e.ObjectID }
func (e *Extinguisher) DueDate() time.Time     { return CalendarDate(e.NextServiceDate) }
func (e *Extinguisher) ItemStatus() ItemStatus { return e.Status }

func (e *Extinguisher) Label() string {
	if e.SerialNumber == "" {
		return "Extinguisher " + e.ID
	}
	return "Extinguisher " + e.SerialNumber
}

// Equipment represents inspection hardware (hoses, alarms, hydrants...)
type Equipment struct {
	ID                 string     `json:"id" bson:"_id"`
	ObjectID           string     `json:"object_id" bson:"object_id"`
	Name               string     `json:"name" bson:"name"`
	InventoryNumber    string     `json:"inventory_number,omitempty" bson:"inventory_number,omitempty"`
	NextInspectionDate time.Time  `json:"next_inspection_date" bson:"next_inspection_date"`
	Status             ItemStatus `json:"status" bson:"status"`
	CreatedAt          time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" bson:"updated_at"`
}

func (e *Equipment) Kind() ItemKind         { return ItemKindEquipment }
func (e *Equipment) ItemID() string         { return e.ID }
func (e *Equipment) FacilityID() string     { return e.ObjectID }
func (e *Equipment) DueDate() time.Time     { return CalendarDate(e.NextInspectionDate) }
func (e *Equipment) ItemStatus() ItemStatus { return e.Status }

func (e *Equipment) Label() string {
	if e.InventoryNumber == "" {
		return e.Name
	}
	return e.Name + " #" + e.InventoryNumber
}

// FacilityInspection represents a facility with a periodic inspection.
// The facility is its own owning object.
type FacilityInspection struct {
	ID                 string     `json:"id" bson:"_id"`
	Name               string     `json:"name" bson:"name"`
	Address            string     `json:"address,omitempty" bson:"address,omitempty"`
	NextInspectionDate time.Time  `json:"next_inspection_date" bson:"next_inspection_date"`
	Status             ItemStatus `json:"status" bson:"status"`
	CreatedAt          time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" bson:"updated_at"`
}

func (f *FacilityInspection) Kind() ItemKind         { return ItemKindFacility }
func (f *FacilityInspection) ItemID() string         { return f.ID }
func (f *FacilityInspection) FacilityID() string     { return f.ID }
func (f *FacilityInspection) DueDate() time.Time     { return CalendarDate(f.NextInspectionDate) }
func (f *FacilityInspection) ItemStatus() ItemStatus { return f.Status }
func (f *FacilityInspection) Label() string          { return "Facility " + f.Name }
