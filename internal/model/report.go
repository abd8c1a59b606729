package model

import (
	"time"

	"github.com/google/uuid"
)

const RecentWindow = 24 * time.Hour

// OffenseType is the stable local identifier of an electoral offense category.
type OffenseType string

// OffenseUnknown is returned when a category cannot be translated.
const OffenseUnknown OffenseType = ""

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type Report struct {
	ID                uuid.UUID   `json:"id"`
	OffenseTypeID     OffenseType `json:"offense_type_id"`
	Location          Location    `json:"location"`
	CreatedAt         time.Time   `json:"created_at"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
	ConfirmationCount int         `json:"confirmation_count"`
	UserHasConfirmed  bool        `json:"user_has_confirmed"`
	IsActive          bool        `json:"is_active"`
	IsExpired         bool        `json:"is_expired"`
}

// IsRecent reports whether the report is younger than RecentWindow at now.
func (r Report) IsRecent(now time.Time) bool {
	return now.Sub(r.CreatedAt) < RecentWindow
}

// ReportDraft is a submission that has not reached the backend yet.
type ReportDraft struct {
	OffenseTypeID OffenseType `json:"offense_type_id" binding:"required"`
	Location      Location    `json:"location"`
}

// ViewBounds is the visible map window.
type ViewBounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

type ConfirmationAck struct {
	ID                string `json:"id,omitempty"`
	Status            string `json:"status,omitempty"`
	ConfirmationCount *int   `json:"confirmation_count,omitempty"`
}

type OffenseCategory struct {
	WireID      int         `json:"id"`
	LocalID     OffenseType `json:"local_id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	IconURL     string      `json:"icon_url,omitempty"`
}

// ReportView is a report as handed to UI collaborators, with the derived
// recency flag filled in.
type ReportView struct {
	Report
	IsRecent bool `json:"is_recent"`
}

func NewReportView(r Report, now time.Time) ReportView {
	return ReportView{Report: r, IsRecent: r.IsRecent(now)}
}

type ReportListResponse struct {
	Reports     []ReportView `json:"reports"`
	Total       int          `json:"total"`
	Loading     bool         `json:"loading"`
	IsConnected bool         `json:"is_connected"`
}
