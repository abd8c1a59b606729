// Package wire holds the JSON shapes exchanged with the backend and the
// conversions between them and the local model.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ACBRI/veritas.ia/internal/geo"
	"github.com/ACBRI/veritas.ia/internal/model"
	"github.com/ACBRI/veritas.ia/internal/offense"

	"github.com/google/uuid"
)

// OffenseID is a wire offense id that may be encoded as a number or a
// numeric string.
type OffenseID struct {
	raw interface{}
}

func (o *OffenseID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		o.raw = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	o.raw = n
	return nil
}

// Local translates the wire id to the local offense type.
func (o OffenseID) Local(tr *offense.Translator) (model.OffenseType, bool) {
	wire, ok := tr.Resolve(o.raw)
	if !ok {
		return model.OffenseUnknown, false
	}
	return tr.FromWire(wire)
}

type CreateReportRequest struct {
	OffenseTypeID int        `json:"offense_type_id"`
	Coordinates   geo.Coords `json:"coordinates"`
}

// ReportRecord is the backend report shape shared by REST responses and
// new_report push payloads. Location is GeoJSON, possibly serialized into a
// string; push payloads may carry Coordinates instead.
type ReportRecord struct {
	ID                string          `json:"id"`
	OffenseTypeID     OffenseID       `json:"offense_type_id"`
	Location          json.RawMessage `json:"location,omitempty"`
	Coordinates       *geo.Coords     `json:"coordinates,omitempty"`
	Accuracy          *float64        `json:"accuracy,omitempty"`
	CreatedAt         *Timestamp      `json:"created_at,omitempty"`
	ExpiresAt         *Timestamp      `json:"expires_at,omitempty"`
	ConfirmationCount int             `json:"confirmation_count"`
	IsActive          *bool           `json:"is_active,omitempty"`
}

// ToReport converts the record to the local shape. UserHasConfirmed is left
// false; only the store knows it.
func (r ReportRecord) ToReport(tr *offense.Translator) (model.Report, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.Report{}, fmt.Errorf("report id %q: %w", r.ID, err)
	}

	offenseType, ok := r.OffenseTypeID.Local(tr)
	if !ok {
		return model.Report{}, fmt.Errorf("report %s: %w: %v", id, model.ErrUnknownOffenseType, r.OffenseTypeID.raw)
	}

	loc, err := r.location()
	if err != nil {
		return model.Report{}, fmt.Errorf("report %s: %w", id, err)
	}

	report := model.Report{
		ID:                id,
		OffenseTypeID:     offenseType,
		Location:          loc,
		ConfirmationCount: r.ConfirmationCount,
		IsActive:          true,
	}
	if r.CreatedAt != nil {
		report.CreatedAt = r.CreatedAt.Time
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.IsZero() {
		expires := r.ExpiresAt.Time
		report.ExpiresAt = &expires
	}
	if r.IsActive != nil {
		report.IsActive = *r.IsActive
	}
	if report.ConfirmationCount < 0 {
		report.ConfirmationCount = 0
	}
	return report, nil
}

func (r ReportRecord) location() (model.Location, error) {
	var (
		c   geo.Coordinate
		err error
	)
	switch {
	case len(r.Location) > 0 && !bytes.Equal(bytes.TrimSpace(r.Location), []byte("null")):
		c, err = geo.Parse(r.Location, geo.ShapeGeoJSON)
	case r.Coordinates != nil:
		c = geo.TransportCoordinates{Coordinates: *r.Coordinates}
	default:
		return model.Location{}, fmt.Errorf("%w: record has no location", model.ErrInvalidCoordinates)
	}
	if err != nil {
		return model.Location{}, err
	}

	loc, err := geo.ToLocation(c)
	if err != nil {
		return model.Location{}, err
	}
	if r.Accuracy != nil && *r.Accuracy >= 0 {
		loc.Accuracy = *r.Accuracy
	}
	return loc, nil
}

type OffenseRecord struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"icon_url"`
}

type ErrorBody struct {
	Detail interface{} `json:"detail"`
	Error  string      `json:"error"`
}

// Message picks the most useful text out of a backend error body.
func (e ErrorBody) Message() string {
	if e.Error != "" {
		return e.Error
	}
	switch d := e.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}
