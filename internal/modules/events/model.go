// README: Domain events emitted on ride state changes and position updates.
package events

import (
	"context"
	"time"

	"transfer/internal/types"
)

type Type string

const (
	TypeAssigned        Type = "ride:assigned"
	TypeAccepted        Type = "ride:accepted"
	TypeRefused         Type = "ride:refused"
	TypeDriverOnWay     Type = "ride:driver-on-way"
	TypePickedUp        Type = "ride:picked-up"
	TypeStarted         Type = "ride:started"
	TypeCompleted       Type = "ride:completed"
	TypeCancelled       Type = "ride:cancelled"
	TypeLocationUpdated Type = "ride:location-updated"

	// TypeSnapshot is written once per websocket connection, before any event.
	TypeSnapshot Type = "ride:snapshot"
)

// Channel identifies which party a subscription belongs to.
type Channel string

const (
	ChannelClient Channel = "client"
	ChannelDriver Channel = "driver"
	ChannelAdmin  Channel = "admin"
)

// Event is one notification about a ride. Sequence is assigned by the
// broadcaster and is strictly increasing per ride.
type Event struct {
	RideID     types.ID       `json:"ride_id"`
	Type       Type           `json:"type"`
	Status     string         `json:"new_status"`
	Version    int            `json:"-"`
	Sequence   int64          `json:"sequence_number"`
	OccurredAt time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// IsStatusChange reports whether the event reflects a persisted transition.
func (e Event) IsStatusChange() bool {
	return e.Type != TypeLocationUpdated
}

// Terminal reports whether no further events are expected for the ride.
func (e Event) Terminal() bool {
	return e.Type == TypeCompleted || e.Type == TypeCancelled
}

// ReleasesDriver returns a predicate matching the events after which driverID
// no longer has a claim on the ride: the ride was handed back, cancelled,
// finished or given to another driver.
func ReleasesDriver(driverID types.ID) func(Event) bool {
	return func(e Event) bool {
		switch {
		case !e.IsStatusChange():
			return false
		case e.Type == TypeRefused, e.Terminal():
			return true
		}
		holder, _ := e.Payload["driver_id"].(string)
		return holder != "" && holder != string(driverID)
	}
}

// Publisher accepts events for asynchronous fan-out. Publish never blocks on
// delivery and never reports delivery failures back to the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Subscriber receives events for the rides it is attached to.
type Subscriber interface {
	ID() string
	Deliver(ctx context.Context, e Event) error
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
