// Package location: firebase_mirror keeps a per-ride position node in
// Firebase RTDB in sync so the mobile apps can render a live marker.
package location

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"

	"transfer/internal/modules/events"
	"transfer/internal/types"
)

// rtdbRideEntry mirrors a single ride entry stored under /ride_locations.
type rtdbRideEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

// FirebaseMirror is a global event subscriber: location events overwrite the
// ride's node and terminal events remove it.
type FirebaseMirror struct {
	dbClient *db.Client
}

func NewFirebaseMirror(ctx context.Context, app *firebase.App) (*FirebaseMirror, error) {
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase RTDB client: %w", err)
	}
	return &FirebaseMirror{dbClient: dbClient}, nil
}

func (m *FirebaseMirror) ID() string { return "firebase:ride_locations" }

func (m *FirebaseMirror) Deliver(ctx context.Context, e events.Event) error {
	ref := m.dbClient.NewRef(rideNode(e.RideID))
	switch {
	case e.Terminal():
		if err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("clearing ride %s location: %w", e.RideID, err)
		}
	case e.Type == events.TypeLocationUpdated:
		s, ok := SampleFromEvent(e)
		if !ok {
			return nil
		}
		entry := rtdbRideEntry{
			Lat:       s.Lat,
			Lng:       s.Lng,
			Status:    e.Status,
			Timestamp: s.CapturedAt.UnixMilli(),
		}
		if err := ref.Set(ctx, entry); err != nil {
			return fmt.Errorf("mirroring ride %s location: %w", e.RideID, err)
		}
	}
	return nil
}

func rideNode(rideID types.ID) string {
	return "ride_locations/" + string(rideID)
}

// SampleFromEvent recovers the sample carried by a location-updated event.
func SampleFromEvent(e events.Event) (Sample, bool) {
	if e.Type != events.TypeLocationUpdated {
		return Sample{}, false
	}
	lat, okLat := e.Payload["lat"].(float64)
	lng, okLng := e.Payload["lng"].(float64)
	if !okLat || !okLng {
		return Sample{}, false
	}
	at, ok := e.Payload["captured_at"].(time.Time)
	if !ok {
		at = e.OccurredAt
	}
	return Sample{RideID: e.RideID, Lat: lat, Lng: lng, CapturedAt: at}, true
}
