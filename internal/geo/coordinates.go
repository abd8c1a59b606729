// Package geo converts between the coordinate shapes used by the map view,
// the backend request bodies and GeoJSON, and answers distance queries.
package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ACBRI/veritas.ia/internal/model"
)

type Shape string

const (
	ShapeLocal     Shape = "local"
	ShapeTransport Shape = "transport"
	ShapeGeoJSON   Shape = "geojson"
)

const pointType = "Point"

// Coordinate is one of LocalPosition, TransportCoordinates or Point.
type Coordinate interface {
	Shape() Shape
	location() (model.Location, error)
}

type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type LocalPosition struct {
	Position struct {
		Coords Coords `json:"coords"`
	} `json:"position"`
}

func (LocalPosition) Shape() Shape { return ShapeLocal }

func (p LocalPosition) location() (model.Location, error) {
	return model.Location(p.Position.Coords), nil
}

type TransportCoordinates struct {
	Coordinates Coords `json:"coordinates"`
}

func (TransportCoordinates) Shape() Shape { return ShapeTransport }

func (t TransportCoordinates) location() (model.Location, error) {
	return model.Location(t.Coordinates), nil
}

// Point is a GeoJSON point. Coordinates are ordered [longitude, latitude].
type Point struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func (Point) Shape() Shape { return ShapeGeoJSON }

func (p Point) location() (model.Location, error) {
	if p.Type != pointType {
		return model.Location{}, fmt.Errorf("%w: geometry type %q", model.ErrInvalidCoordinates, p.Type)
	}
	if len(p.Coordinates) < 2 {
		return model.Location{}, fmt.Errorf("%w: point needs 2 positions, got %d", model.ErrInvalidCoordinates, len(p.Coordinates))
	}
	return model.Location{Longitude: p.Coordinates[0], Latitude: p.Coordinates[1]}, nil
}

// FromLocation wraps loc into the requested shape.
func FromLocation(loc model.Location, to Shape) (Coordinate, error) {
	switch to {
	case ShapeLocal:
		var p LocalPosition
		p.Position.Coords = Coords(loc)
		return p, nil
	case ShapeTransport:
		return TransportCoordinates{Coordinates: Coords(loc)}, nil
	case ShapeGeoJSON:
		return Point{Type: pointType, Coordinates: []float64{loc.Longitude, loc.Latitude}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown shape %q", model.ErrInvalidCoordinates, to)
	}
}

// ToLocation extracts and validates the location carried by c.
func ToLocation(c Coordinate) (model.Location, error) {
	if c == nil {
		return model.Location{}, fmt.Errorf("%w: no coordinate", model.ErrInvalidCoordinates)
	}
	loc, err := c.location()
	if err != nil {
		return model.Location{}, err
	}
	if err := Validate(loc); err != nil {
		return model.Location{}, err
	}
	return loc, nil
}

// Normalize re-wraps c into the shape to. GeoJSON carries no accuracy, so
// converting through it resets accuracy to 0.
func Normalize(c Coordinate, to Shape) (Coordinate, error) {
	loc, err := ToLocation(c)
	if err != nil {
		return nil, err
	}
	return FromLocation(loc, to)
}

// Parse decodes raw JSON declared to be in shape from. A GeoJSON value may
// also arrive as a JSON string holding the serialized object.
func Parse(raw []byte, from Shape) (Coordinate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: empty value", model.ErrInvalidCoordinates)
	}

	switch from {
	case ShapeLocal:
		var probe struct {
			Position *struct {
				Coords *Coords `json:"coords"`
			} `json:"position"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidCoordinates, err)
		}
		if probe.Position == nil || probe.Position.Coords == nil {
			return nil, fmt.Errorf("%w: missing position.coords", model.ErrInvalidCoordinates)
		}
		var p LocalPosition
		p.Position.Coords = *probe.Position.Coords
		return p, nil

	case ShapeTransport:
		var probe struct {
			Coordinates *Coords `json:"coordinates"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidCoordinates, err)
		}
		if probe.Coordinates == nil {
			return nil, fmt.Errorf("%w: missing coordinates", model.ErrInvalidCoordinates)
		}
		return TransportCoordinates{Coordinates: *probe.Coordinates}, nil

	case ShapeGeoJSON:
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrInvalidCoordinates, err)
			}
			return Parse([]byte(s), ShapeGeoJSON)
		}
		var p Point
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: geojson: %v", model.ErrInvalidCoordinates, err)
		}
		if _, err := p.location(); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: unknown shape %q", model.ErrInvalidCoordinates, from)
	}
}

// Validate checks that loc is finite and inside the WGS84 ranges.
func Validate(loc model.Location) error {
	for _, v := range []float64{loc.Latitude, loc.Longitude, loc.Accuracy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", model.ErrInvalidCoordinates)
		}
	}
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", model.ErrInvalidCoordinates, loc.Latitude)
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", model.ErrInvalidCoordinates, loc.Longitude)
	}
	if loc.Accuracy < 0 {
		return fmt.Errorf("%w: negative accuracy", model.ErrInvalidCoordinates)
	}
	return nil
}
