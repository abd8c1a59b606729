package geo

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ACBRI/veritas.ia/internal/model"
)

// BoundsInput is one of model.ViewBounds, WidgetBounds or BoundsArray.
type BoundsInput interface {
	bounds() (model.ViewBounds, error)
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// WidgetBounds is the corner pair emitted by the map widget.
type WidgetBounds struct {
	SouthWest LatLng `json:"_southWest"`
	NorthEast LatLng `json:"_northEast"`
}

func (w WidgetBounds) bounds() (model.ViewBounds, error) {
	return model.ViewBounds{
		MinLat: w.SouthWest.Lat,
		MinLon: w.SouthWest.Lng,
		MaxLat: w.NorthEast.Lat,
		MaxLon: w.NorthEast.Lng,
	}, nil
}

// BoundsArray is ordered [minLat, minLon, maxLat, maxLon].
type BoundsArray []float64

func (a BoundsArray) bounds() (model.ViewBounds, error) {
	if len(a) < 4 {
		return model.ViewBounds{}, fmt.Errorf("%w: bounds array needs 4 values, got %d", model.ErrInvalidCoordinates, len(a))
	}
	return model.ViewBounds{MinLat: a[0], MinLon: a[1], MaxLat: a[2], MaxLon: a[3]}, nil
}

type explicitBounds model.ViewBounds

func (e explicitBounds) bounds() (model.ViewBounds, error) { return model.ViewBounds(e), nil }

// Explicit adapts already-normalized bounds to BoundsInput.
func Explicit(b model.ViewBounds) BoundsInput { return explicitBounds(b) }

// NormalizeBounds converts any supported bounds input into the query shape
// and checks it describes a non-empty window.
func NormalizeBounds(in BoundsInput) (model.ViewBounds, error) {
	if in == nil {
		return model.ViewBounds{}, fmt.Errorf("%w: no bounds", model.ErrInvalidCoordinates)
	}
	b, err := in.bounds()
	if err != nil {
		return model.ViewBounds{}, err
	}
	for _, corner := range []model.Location{
		{Latitude: b.MinLat, Longitude: b.MinLon},
		{Latitude: b.MaxLat, Longitude: b.MaxLon},
	} {
		if err := Validate(corner); err != nil {
			return model.ViewBounds{}, err
		}
	}
	if b.MaxLat <= b.MinLat || b.MaxLon <= b.MinLon {
		return model.ViewBounds{}, fmt.Errorf("%w: bounds max must be greater than min", model.ErrInvalidCoordinates)
	}
	return b, nil
}

// ParseBounds sniffs a JSON document for one of the supported bounds shapes.
func ParseBounds(raw []byte) (BoundsInput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty bounds", model.ErrInvalidCoordinates)
	}

	if raw[0] == '[' {
		var arr BoundsArray
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidCoordinates, err)
		}
		return arr, nil
	}

	var probe struct {
		SouthWest *LatLng  `json:"_southWest"`
		NorthEast *LatLng  `json:"_northEast"`
		MinLat    *float64 `json:"min_lat"`
		MinLon    *float64 `json:"min_lon"`
		MaxLat    *float64 `json:"max_lat"`
		MaxLon    *float64 `json:"max_lon"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidCoordinates, err)
	}

	switch {
	case probe.MinLat != nil && probe.MaxLat != nil && probe.MinLon != nil && probe.MaxLon != nil:
		return Explicit(model.ViewBounds{
			MinLat: *probe.MinLat,
			MinLon: *probe.MinLon,
			MaxLat: *probe.MaxLat,
			MaxLon: *probe.MaxLon,
		}), nil
	case probe.SouthWest != nil && probe.NorthEast != nil:
		return WidgetBounds{SouthWest: *probe.SouthWest, NorthEast: *probe.NorthEast}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized bounds format", model.ErrInvalidCoordinates)
	}
}
