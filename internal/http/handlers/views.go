// README: JSON views of rides; the access code is only shown to its owner and admins.
package handlers

import (
	"time"

	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

type contactView struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type addressView struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

type actorView struct {
	Type string   `json:"type"`
	ID   types.ID `json:"id,omitempty"`
}

type rideView struct {
	ID           types.ID    `json:"id"`
	Status       ride.Status `json:"status"`
	RideType     string      `json:"ride_type"`
	Client       contactView `json:"client"`
	Pickup       addressView `json:"pickup"`
	Dropoff      addressView `json:"dropoff"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	Price        types.Money `json:"price"`
	AccessCode   string      `json:"access_code,omitempty"`
	DriverID     *types.ID   `json:"driver_id"`
	FlightNumber string      `json:"flight_number,omitempty"`
	Passengers   int         `json:"passengers"`
	Luggage      int         `json:"luggage"`
	Notes        string      `json:"notes,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	AssignedAt   *time.Time  `json:"assigned_at,omitempty"`
	AcceptedAt   *time.Time  `json:"accepted_at,omitempty"`
	DepartedAt   *time.Time  `json:"departed_at,omitempty"`
	PickedUpAt   *time.Time  `json:"picked_up_at,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	CancelledAt  *time.Time  `json:"cancelled_at,omitempty"`
	CancelReason *string     `json:"cancel_reason,omitempty"`
	CancelledBy  *actorView  `json:"cancelled_by,omitempty"`
	Version      int         `json:"version"`
}

func newAddressView(a ride.Address) addressView {
	v := addressView{Address: a.Line}
	if a.Point != nil {
		lat, lng := a.Point.Lat, a.Point.Lng
		v.Lat, v.Lng = &lat, &lng
	}
	return v
}

func newRideView(r *ride.Ride, withCode bool) rideView {
	v := rideView{
		ID:           r.ID,
		Status:       r.Status,
		RideType:     string(r.RideType),
		Client:       contactView{Name: r.Client.Name, Phone: r.Client.Phone, Email: r.Client.Email},
		Pickup:       newAddressView(r.Pickup),
		Dropoff:      newAddressView(r.Dropoff),
		ScheduledAt:  r.ScheduledAt,
		Price:        r.Price,
		DriverID:     r.DriverID,
		FlightNumber: r.FlightNumber,
		Passengers:   r.Passengers,
		Luggage:      r.Luggage,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
		AssignedAt:   r.AssignedAt,
		AcceptedAt:   r.AcceptedAt,
		DepartedAt:   r.DepartedAt,
		PickedUpAt:   r.PickedUpAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		CancelledAt:  r.CancelledAt,
		CancelReason: r.CancelReason,
		Version:      r.Version,
	}
	if withCode {
		v.AccessCode = r.AccessCode
	}
	if r.CancelledBy != nil {
		v.CancelledBy = &actorView{Type: string(r.CancelledBy.Type), ID: r.CancelledBy.ID}
	}
	return v
}

func newRideViews(rides []*ride.Ride) []rideView {
	out := make([]rideView, 0, len(rides))
	for _, r := range rides {
		out = append(out, newRideView(r, false))
	}
	return out
}

type transitionView struct {
	From     ride.Status `json:"from"`
	To       ride.Status `json:"to"`
	Actor    actorView   `json:"actor"`
	DriverID *types.ID   `json:"driver_id,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	At       time.Time   `json:"at"`
}

func newTransitionViews(ts []ride.Transition) []transitionView {
	out := make([]transitionView, 0, len(ts))
	for _, t := range ts {
		out = append(out, transitionView{
			From:     t.From,
			To:       t.To,
			Actor:    actorView{Type: string(t.Actor.Type), ID: t.Actor.ID},
			DriverID: t.DriverID,
			Reason:   t.Reason,
			At:       t.At,
		})
	}
	return out
}
