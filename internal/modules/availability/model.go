// README: Availability candidates: eligible drivers ranked by current load.
package availability

import (
	"context"

	"transfer/internal/modules/driver"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

// Candidate is a driver who may take a pending ride, with the number of
// rides already assigned or accepted by them.
type Candidate struct {
	Driver      *driver.Driver `json:"driver"`
	ActiveRides int            `json:"active_rides"`
}

// RideLister is the slice of the ride store the pool reads from.
type RideLister interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListByStatus(ctx context.Context, statuses ...ride.Status) ([]*ride.Ride, error)
}

var (
	// queued rides count toward a driver's load.
	queuedStatuses = []ride.Status{ride.StatusAssigned, ride.StatusAccepted}
	// busy drivers are on the road and left out of the pool.
	busyStatuses = ride.OnTheRoadStatuses
)
