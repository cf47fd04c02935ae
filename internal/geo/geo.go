// Package geo provides great-circle distance and hysteresis-based fence
// containment checks for GeoShift.
//
// Containment is computed as distance <= radius * hysteresis. Entry checks
// use a tight boundary (factor 1.0) while exit and heartbeat checks use a
// 30% buffer so boundary jitter cannot produce an exit signal moments after
// an entry was confirmed.
package geo

import (
	"math"

	"github.com/BTreeMap/GeoShift/internal/models"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6_371_000

	// HysteresisEntry is the containment factor for entry determination.
	HysteresisEntry = 1.0
	// HysteresisExit is the containment factor for exit and heartbeat
	// determination.
	HysteresisExit = 1.3
)

// Distance computes the great-circle distance in meters between two
// coordinates using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// DistanceToFence computes the distance in meters from a position to the
// fence center.
func DistanceToFence(pos models.Position, fence models.Fence) float64 {
	return Distance(pos.Latitude, pos.Longitude, fence.Latitude, fence.Longitude)
}

// Contains reports whether the position lies within the fence radius scaled
// by the given hysteresis factor.
func Contains(pos models.Position, fence models.Fence, hysteresis float64) bool {
	return DistanceToFence(pos, fence) <= fence.RadiusMeters*hysteresis
}

// Evaluation captures a single containment evaluation for audit logging.
type Evaluation struct {
	DistanceMeters  float64
	EffectiveRadius float64
	MarginMeters    float64
	IsInside        bool
}

// Evaluate computes distance, effective radius, margin, and containment for
// a position against a fence with the given hysteresis factor.
func Evaluate(pos models.Position, fence models.Fence, hysteresis float64) Evaluation {
	distance := DistanceToFence(pos, fence)
	effective := fence.RadiusMeters * hysteresis
	return Evaluation{
		DistanceMeters:  distance,
		EffectiveRadius: effective,
		MarginMeters:    effective - distance,
		IsInside:        distance <= effective,
	}
}

// HysteresisFor returns the containment factor appropriate for a transition
// kind: tight for entries, buffered for exits.
func HysteresisFor(kind models.TransitionKind) float64 {
	if kind == models.TransitionEnter {
		return HysteresisEntry
	}
	return HysteresisExit
}
