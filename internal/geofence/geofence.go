// Package geofence decides whether a device location is inside the circular
// admissible zone around a work site.
//
// Distances are great-circle distances computed with the haversine formula on
// a sphere of radius EarthRadiusMeters. Every function here is pure.
package geofence

import (
	"fmt"
	"math"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
)

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// DefaultRadiusMeters applies to sites that have coordinates but no radius.
const DefaultRadiusMeters = 4000.0

// ErrIndeterminate is returned by Validate when the check cannot run.
var ErrIndeterminate = apperrors.New(apperrors.ErrGeofenceIndeterminate, "geofence check cannot be determined")

// GeoPoint is a latitude/longitude pair in decimal degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both components are finite and in range.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Zone is a circular admissible area.
type Zone struct {
	Center       GeoPoint `json:"center"`
	RadiusMeters float64  `json:"radius_meters"`
}

// Outcome classifies a validation result.
type Outcome string

const (
	OutcomeAdmitted      Outcome = "admitted"
	OutcomeRejected      Outcome = "rejected"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// Result is the outcome of Validate.
type Result struct {
	Admitted       bool    `json:"admitted"`
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
	Indeterminate  bool    `json:"indeterminate,omitempty"`
}

// Outcome returns the three-way classification of r.
func (r Result) Outcome() Outcome {
	switch {
	case r.Indeterminate:
		return OutcomeIndeterminate
	case r.Admitted:
		return OutcomeAdmitted
	default:
		return OutcomeRejected
	}
}

// Message renders r for people. Distances are rounded here and nowhere else.
func (r Result) Message() string {
	switch r.Outcome() {
	case OutcomeIndeterminate:
		return "location could not be verified"
	case OutcomeAdmitted:
		return fmt.Sprintf("inside perimeter: %s from site (limit %s)",
			formatDistance(r.DistanceMeters), formatDistance(r.RadiusMeters))
	default:
		return fmt.Sprintf("outside perimeter: %s from site (limit %s)",
			formatDistance(r.DistanceMeters), formatDistance(r.RadiusMeters))
	}
}

func formatDistance(m float64) string {
	if m >= 1000 {
		return fmt.Sprintf("%.2f km", m/1000)
	}
	return fmt.Sprintf("%.0f m", math.Round(m))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceMeters returns the haversine great-circle distance between a and b.
func DistanceMeters(a, b GeoPoint) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*sinLon*sinLon
	// h can drift a hair above 1 for antipodal points
	h = math.Min(1, h)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Validate checks current against zone. Out-of-range coordinates or a
// non-positive radius yield an indeterminate Result and ErrIndeterminate.
func Validate(current GeoPoint, zone Zone) (Result, error) {
	if !current.Valid() || !zone.Center.Valid() ||
		math.IsNaN(zone.RadiusMeters) || zone.RadiusMeters <= 0 {
		return Result{Indeterminate: true, RadiusMeters: zone.RadiusMeters}, ErrIndeterminate
	}

	d := DistanceMeters(current, zone.Center)
	return Result{
		Admitted:       d <= zone.RadiusMeters,
		DistanceMeters: d,
		RadiusMeters:   zone.RadiusMeters,
	}, nil
}

// Site is the subset of a work-site record the validator consumes.
// Latitude and Longitude are nil when geofencing is not configured.
type Site struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusMeters *float64 `json:"radius_meters,omitempty"`
}

// Zone returns the site's zone. ok is false when the site has no coordinates,
// meaning geofencing is not configured and Validate must not be called.
func (s Site) Zone() (zone Zone, ok bool) {
	if s.Latitude == nil || s.Longitude == nil {
		return Zone{}, false
	}
	radius := DefaultRadiusMeters
	if s.RadiusMeters != nil && *s.RadiusMeters > 0 {
		radius = *s.RadiusMeters
	}
	return Zone{
		Center:       GeoPoint{Latitude: *s.Latitude, Longitude: *s.Longitude},
		RadiusMeters: radius,
	}, true
}
