// README: Location service gates GPS pings by ride state, keeps the latest sample and derives ETAs.
package location

import (
	"context"
	"time"

	"transfer/internal/clock"
	"transfer/internal/logger"
	"transfer/internal/metrics"
	"transfer/internal/modules/events"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

// RideReader is the slice of the ride store the location service needs.
type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Options struct {
	// StaleAfter is how old a sample may be before it is treated as unknown.
	StaleAfter      time.Duration
	AverageSpeedKmh float64
}

type Deps struct {
	Rides   RideReader
	Cache   Cache
	Trail   Trail
	Events  events.Publisher
	Clock   clock.Clock
	Log     logger.Logger
	Metrics *metrics.Metrics
}

type Service struct {
	rides   RideReader
	cache   Cache
	trail   Trail
	events  events.Publisher
	clock   clock.Clock
	log     logger.Logger
	metrics *metrics.Metrics
	opts    Options
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 60 * time.Second
	}
	if opts.AverageSpeedKmh <= 0 {
		opts.AverageSpeedKmh = DefaultAverageSpeedKmh
	}
	return &Service{
		rides:   deps.Rides,
		cache:   deps.Cache,
		trail:   deps.Trail,
		events:  deps.Events,
		clock:   deps.Clock,
		log:     deps.Log,
		metrics: deps.Metrics,
		opts:    opts,
	}
}

type Update struct {
	RideID types.ID
	Lat    float64
	Lng    float64
	// CapturedAt defaults to now when zero and is capped at now.
	CapturedAt time.Time
}

// UpdateLocation stores a ping for a ride the driver is actively serving.
// It reports false when the ping was older than the stored sample.
func (s *Service) UpdateLocation(ctx context.Context, u Update) (bool, error) {
	if !(types.Point{Lat: u.Lat, Lng: u.Lng}).Valid() {
		s.metrics.LocationUpdate("invalid")
		return false, ErrInvalidCoordinates
	}
	r, err := s.rides.Get(ctx, u.RideID)
	if err != nil {
		return false, err
	}
	if !r.Status.InTransit() {
		s.metrics.LocationUpdate("rejected")
		return false, ErrInvalidState
	}

	// Future-stamped samples are capped so they cannot shadow later pings.
	now := s.clock.Now()
	at := u.CapturedAt
	if at.IsZero() || at.After(now) {
		at = now
	}
	sample := Sample{RideID: u.RideID, Lat: u.Lat, Lng: u.Lng, CapturedAt: at.UTC()}
	applied, err := s.cache.Put(ctx, sample)
	if err != nil {
		return false, err
	}
	if !applied {
		s.metrics.LocationUpdate("stale")
		return false, nil
	}
	s.metrics.LocationUpdate("applied")

	if s.trail != nil {
		if err := s.trail.Append(ctx, sample); err != nil {
			s.log.Warn("location trail append failed", "ride_id", u.RideID, "error", err)
		}
	}
	s.events.Publish(ctx, events.Event{
		RideID:     r.ID,
		Type:       events.TypeLocationUpdated,
		Status:     string(r.Status),
		Version:    r.Version,
		OccurredAt: sample.CapturedAt,
		Payload: map[string]any{
			"lat":         sample.Lat,
			"lng":         sample.Lng,
			"captured_at": sample.CapturedAt,
		},
	})
	return true, nil
}

// GetLocation returns the latest sample, or ErrNotAvailable when none was
// recorded or the last one is older than StaleAfter.
func (s *Service) GetLocation(ctx context.Context, rideID types.ID) (Sample, error) {
	if _, err := s.rides.Get(ctx, rideID); err != nil {
		return Sample{}, err
	}
	return s.latest(ctx, rideID)
}

func (s *Service) latest(ctx context.Context, rideID types.ID) (Sample, error) {
	sample, err := s.cache.Get(ctx, rideID)
	if err != nil {
		return Sample{}, err
	}
	if sample == nil || s.clock.Now().Sub(sample.CapturedAt) > s.opts.StaleAfter {
		return Sample{}, ErrNotAvailable
	}
	return *sample, nil
}

// Trail returns every applied sample of a ride, oldest first. Without a
// configured trail it returns an empty list.
func (s *Service) Trail(ctx context.Context, rideID types.ID) ([]Sample, error) {
	if _, err := s.rides.Get(ctx, rideID); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []Sample{}, nil
	}
	return s.trail.Samples(ctx, rideID)
}

// ETA estimates arrival at the pickup until the client is on board and at
// the dropoff afterwards.
func (s *Service) ETA(ctx context.Context, rideID types.ID) (ETA, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return ETA{}, err
	}

	var target Target
	var dest *types.Point
	switch r.Status {
	case ride.StatusAccepted, ride.StatusDriverOnWay:
		target, dest = TargetPickup, r.Pickup.Point
	case ride.StatusPickedUp, ride.StatusInProgress:
		target, dest = TargetDropoff, r.Dropoff.Point
	default:
		return ETA{}, ErrInvalidState
	}
	if dest == nil {
		return ETA{}, ErrNotAvailable
	}

	from, err := s.latest(ctx, rideID)
	if err != nil {
		return ETA{}, err
	}
	est := EstimateETA(from.Lat, from.Lng, dest.Lat, dest.Lng, s.opts.AverageSpeedKmh)
	return ETA{
		RideID:     rideID,
		Target:     target,
		DistanceKm: est.DistanceKm,
		Minutes:    est.Minutes,
		Text:       est.Text,
		From:       from,
	}, nil
}
