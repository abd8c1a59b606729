package geo

import (
	"math"

	"github.com/ACBRI/veritas.ia/internal/model"
)

const EarthRadiusKm = 6371

// DistanceKm is the great-circle distance between a and b on a sphere of
// radius EarthRadiusKm. Accuracy is ignored.
func DistanceKm(a, b model.Location) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	h := hav(lat2-lat1) + math.Cos(lat1)*math.Cos(lat2)*hav(radians(b.Longitude-a.Longitude))
	// Rounding can push h just past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

func hav(theta float64) float64 {
	s := math.Sin(theta / 2)
	return s * s
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
