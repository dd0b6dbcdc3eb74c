package geo

import (
	"math"
	"time"
)

// #region coordinate

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// #endregion coordinate

// #region position

// Position is a single device fix. Immutable: each new reading supersedes
// the previous one, nothing mutates an existing Position.
type Position struct {
	Coordinate
	AccuracyM float64   `json:"accuracy_m"` // horizontal accuracy radius in meters
	Timestamp time.Time `json:"timestamp"`
}

// #endregion position

// #region candidate-site

// CandidateSite is a point of interest supplied by the site source.
// The ID is opaque to the scheduler; it only round-trips through region identifiers.
type CandidateSite struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Center Coordinate `json:"center"`
}

// #endregion candidate-site

// #region distance

const earthRadiusKm = 6371.0

// DistanceKm computes the haversine great-circle distance between two coordinates.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// BoundingBox returns a lat/lon box that fully contains the circle of radiusKm
// around center. Used as a cheap SQL prefilter before exact haversine sorting.
// Longitude span widens toward the poles; clamped near them.
func BoundingBox(center Coordinate, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := radiusKm / 111.0 // ~111 km per degree of latitude
	minLat = center.Lat - dLat
	maxLat = center.Lat + dLat

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusKm / (111.0 * cosLat)
	minLon = center.Lon - dLon
	maxLon = center.Lon + dLon
	return minLat, maxLat, minLon, maxLon
}

// #endregion distance
