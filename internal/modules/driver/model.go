// README: Driver availability projection read from the driver directory.
package driver

import (
	"context"
	"errors"

	"transfer/internal/types"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusOnBreak     Status = "on_break"
	StatusOnRide      Status = "on_ride"
)

var ErrNotFound = errors.New("driver not found")

type Driver struct {
	ID       types.ID
	Name     string
	Verified bool
	Status   Status
}

// Assignable reports whether an admin may assign this driver to a ride.
func (d *Driver) Assignable() bool {
	return d.Verified && (d.Status == StatusAvailable || d.Status == StatusUnavailable)
}

// InPool reports whether the driver may see and self-accept pending rides.
func (d *Driver) InPool() bool {
	return d.Verified && d.Status == StatusAvailable
}

// Directory is the read-only view of driver profiles owned elsewhere.
type Directory interface {
	GetDriver(ctx context.Context, id types.ID) (*Driver, error)
	ListDrivers(ctx context.Context) ([]*Driver, error)
}
