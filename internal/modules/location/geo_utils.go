// Package location: geo_utils contains pure geographic computation helpers.
package location

import (
	"fmt"
	"math"
)

const (
	earthRadiusKm = 6371.0

	DefaultAverageSpeedKmh = 30.0
)

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Estimate is a distance/time pair at constant speed. No traffic model.
type Estimate struct {
	DistanceKm float64
	Minutes    int
	Text       string
}

// EstimateETA divides the great-circle distance by speedKmh and rounds up to
// the next whole minute. A non-positive speed falls back to the default.
func EstimateETA(originLat, originLng, destLat, destLng, speedKmh float64) Estimate {
	if speedKmh <= 0 {
		speedKmh = DefaultAverageSpeedKmh
	}
	km := haversineKm(originLat, originLng, destLat, destLng)
	// The epsilon keeps float noise from pushing exact minutes up by one.
	minutes := int(math.Ceil(km/speedKmh*60 - 1e-9))
	if minutes < 0 {
		minutes = 0
	}
	return Estimate{DistanceKm: km, Minutes: minutes, Text: FormatETA(minutes)}
}

// FormatETA renders "45min" up to one hour and "1h 5min" beyond.
func FormatETA(minutes int) string {
	if minutes <= 60 {
		return fmt.Sprintf("%dmin", minutes)
	}
	return fmt.Sprintf("%dh %dmin", minutes/60, minutes%60)
}
