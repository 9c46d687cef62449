// README: Availability pool is a read-only projection over the driver directory and ride store.
package availability

import (
	"context"
	"errors"
	"sort"

	"transfer/internal/modules/driver"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

// Pool is recomputed on every call; nothing is cached.
type Pool struct {
	rides   RideLister
	drivers driver.Directory
}

func NewPool(rides RideLister, drivers driver.Directory) *Pool {
	return &Pool{rides: rides, drivers: drivers}
}

// ListAvailableFor returns the drivers an admin can offer a pending ride to,
// least loaded first.
func (p *Pool) ListAvailableFor(ctx context.Context, rideID types.ID) ([]Candidate, error) {
	r, err := p.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != ride.StatusPending {
		return nil, ride.ErrInvalidState
	}

	active, err := p.rides.ListByStatus(ctx, append(append([]ride.Status{}, queuedStatuses...), busyStatuses...)...)
	if err != nil {
		return nil, err
	}
	load := make(map[types.ID]int)
	busy := make(map[types.ID]bool)
	for _, a := range active {
		if a.DriverID == nil {
			continue
		}
		if a.Status.OnTheRoad() {
			busy[*a.DriverID] = true
			continue
		}
		load[*a.DriverID]++
	}

	drivers, err := p.drivers.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if !d.InPool() || busy[d.ID] {
			continue
		}
		out = append(out, Candidate{Driver: d, ActiveRides: load[d.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ActiveRides != out[j].ActiveRides {
			return out[i].ActiveRides < out[j].ActiveRides
		}
		return out[i].Driver.ID < out[j].Driver.ID
	})
	return out, nil
}

// ListAvailableRides returns the pending rides a driver may self-accept,
// soonest first. Drivers outside the pool or on the road get an empty list.
func (p *Pool) ListAvailableRides(ctx context.Context, driverID types.ID) ([]*ride.Ride, error) {
	d, err := p.drivers.GetDriver(ctx, driverID)
	if errors.Is(err, driver.ErrNotFound) {
		return nil, ride.ErrDriverNotFound
	}
	if err != nil {
		return nil, err
	}
	if !d.InPool() {
		return []*ride.Ride{}, nil
	}
	onRoad, err := p.rides.ListByStatus(ctx, busyStatuses...)
	if err != nil {
		return nil, err
	}
	for _, a := range onRoad {
		if a.HasDriver(driverID) {
			return []*ride.Ride{}, nil
		}
	}
	pending, err := p.rides.ListByStatus(ctx, ride.StatusPending)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ScheduledAt.Before(pending[j].ScheduledAt)
	})
	return pending, nil
}
