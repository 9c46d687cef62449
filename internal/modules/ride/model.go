// README: Ride aggregate, status definitions and the transition table.
package ride

import (
	"fmt"
	"time"

	"transfer/internal/types"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusAssigned    Status = "assigned"
	StatusAccepted    Status = "accepted"
	StatusDriverOnWay Status = "driver_on_way"
	StatusPickedUp    Status = "picked_up"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

var AllStatuses = []Status{
	StatusPending, StatusAssigned, StatusAccepted, StatusDriverOnWay,
	StatusPickedUp, StatusInProgress, StatusCompleted, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasDriver reports whether a ride in this status must carry a driver.
func (s Status) HasDriver() bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusDriverOnWay, StatusPickedUp, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// InTransit reports whether the driver is actively serving the ride and
// position pings are accepted.
func (s Status) InTransit() bool {
	switch s {
	case StatusAccepted, StatusDriverOnWay, StatusPickedUp, StatusInProgress:
		return true
	}
	return false
}

// OnTheRoadStatuses are the statuses in which the driver is physically
// serving the ride and cannot take on another one.
var OnTheRoadStatuses = []Status{StatusDriverOnWay, StatusPickedUp, StatusInProgress}

func (s Status) OnTheRoad() bool {
	for _, v := range OnTheRoadStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type RideType string

const (
	RideCityToAirport RideType = "city_to_airport"
	RideAirportToCity RideType = "airport_to_city"
	RideCityToCity    RideType = "city_to_city"
)

func (t RideType) Valid() bool {
	switch t {
	case RideCityToAirport, RideAirportToCity, RideCityToCity:
		return true
	}
	return false
}

type ActorType string

const (
	ActorClient ActorType = "client"
	ActorDriver ActorType = "driver"
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

type Actor struct {
	Type ActorType
	ID   types.ID
}

type Contact struct {
	Name  string
	Phone string
	Email string
}

type Address struct {
	Line  string
	Point *types.Point
}

type Ride struct {
	ID          types.ID
	Status      Status
	RideType    RideType
	Client      Contact
	Pickup      Address
	Dropoff     Address
	ScheduledAt time.Time
	Price       types.Money
	AccessCode  string
	DriverID    *types.ID

	FlightNumber string
	Passengers   int
	Luggage      int
	Notes        string

	CreatedAt    time.Time
	AssignedAt   *time.Time
	AcceptedAt   *time.Time
	DepartedAt   *time.Time
	PickedUpAt   *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
	CancelledBy  *Actor

	Version int
}

// Transition is one row of a ride's status history.
type Transition struct {
	ID       int64
	RideID   types.ID
	From     Status
	To       Status
	Actor    Actor
	DriverID *types.ID
	Reason   string
	At       time.Time
}

// AllowedTransitions represents the ride state flow as code. It is the only
// place a status change is declared legal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:     {StatusAssigned, StatusAccepted, StatusCancelled},
	StatusAssigned:    {StatusAccepted, StatusPending, StatusCancelled},
	StatusAccepted:    {StatusDriverOnWay, StatusInProgress, StatusCancelled},
	StatusDriverOnWay: {StatusPickedUp, StatusInProgress, StatusCancelled},
	StatusPickedUp:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (r *Ride) Clone() *Ride {
	c := *r
	c.Pickup.Point = clonePoint(r.Pickup.Point)
	c.Dropoff.Point = clonePoint(r.Dropoff.Point)
	if r.DriverID != nil {
		d := *r.DriverID
		c.DriverID = &d
	}
	c.AssignedAt = cloneTime(r.AssignedAt)
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.DepartedAt = cloneTime(r.DepartedAt)
	c.PickedUpAt = cloneTime(r.PickedUpAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.CancelReason != nil {
		v := *r.CancelReason
		c.CancelReason = &v
	}
	if r.CancelledBy != nil {
		v := *r.CancelledBy
		c.CancelledBy = &v
	}
	return &c
}

// HasDriver reports whether id is the ride's current driver.
func (r *Ride) HasDriver(id types.ID) bool {
	return r.DriverID != nil && *r.DriverID == id
}

// CheckInvariants verifies the status/driver/timestamp coupling of a ride.
func (r *Ride) CheckInvariants() error {
	if !r.Status.Valid() {
		return fmt.Errorf("ride %s: unknown status %q", r.ID, r.Status)
	}
	if r.Status.HasDriver() != (r.DriverID != nil) {
		return fmt.Errorf("ride %s: driver presence does not match status %s", r.ID, r.Status)
	}
	if (r.Status == StatusCompleted) != (r.CompletedAt != nil) {
		return fmt.Errorf("ride %s: completed_at does not match status %s", r.ID, r.Status)
	}
	if (r.Status == StatusCancelled) != (r.CancelledAt != nil) {
		return fmt.Errorf("ride %s: cancelled_at does not match status %s", r.ID, r.Status)
	}
	if len(r.AccessCode) != AccessCodeLength {
		return fmt.Errorf("ride %s: malformed access code", r.ID)
	}
	return nil
}

func clonePoint(p *types.Point) *types.Point {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
