package domain

import "time"

// ReportType selects which items a generated report covers
type ReportType string

const (
	ReportTypeFull          ReportType = "full"
	ReportTypeExpired       ReportType = "expired"
	ReportTypeUpcoming      ReportType = "upcoming"
	ReportTypeExtinguishers ReportType = "extinguishers"
	ReportTypeEquipment     ReportType = "equipment"
	ReportTypeFacilities    ReportType = "facilities"
)

// Valid reports whether t is a known report type
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeFull, ReportTypeExpired, ReportTypeUpcoming,
		ReportTypeExtinguishers, ReportTypeEquipment, ReportTypeFacilities:
		return true
	}
	return false
}

// ReportArtifact describes a generated report
type ReportArtifact struct {
	Type        ReportType `json:"type"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	Location    string     `json:"location,omitempty"`
	ItemCount   int        `json:"item_count"`
	GeneratedAt time.Time  `json:"generated_at"`
	// Content is kept only when no artifact store is configured
	Content []byte `json:"-"`
}

// ReportRun records the last generation of a report type
type ReportRun struct {
	OwnerID     string     `bson:"owner_id"`
	Type        ReportType `bson:"type"`
	GeneratedAt time.Time  `bson:"generated_at"`
	Location    string     `bson:"location,omitempty"`
}
