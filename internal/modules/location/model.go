// README: Latest known driver position per ride and the ETA derived from it.
package location

import (
	"errors"
	"time"

	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

var (
	ErrInvalidState       = ride.ErrInvalidState
	ErrNotAvailable       = ride.ErrNotAvailable
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// Sample is one GPS ping from the driver serving a ride.
type Sample struct {
	RideID     types.ID  `json:"ride_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	CapturedAt time.Time `json:"captured_at"`
}

func (s Sample) Point() types.Point {
	return types.Point{Lat: s.Lat, Lng: s.Lng}
}

type Target string

const (
	TargetPickup  Target = "pickup"
	TargetDropoff Target = "dropoff"
)

// ETA is the straight-line arrival estimate toward the ride's next stop.
type ETA struct {
	RideID     types.ID `json:"ride_id"`
	Target     Target   `json:"target"`
	DistanceKm float64  `json:"distance_km"`
	Minutes    int      `json:"minutes"`
	Text       string   `json:"eta"`
	From       Sample   `json:"from"`
}
