// README: Ride store backed by PostgreSQL; writes are version-checked (optimistic concurrency).
package ride

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transfer/internal/types"
)

// Store is the durable keyed storage of rides and their history.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	GetByAccessCode(ctx context.Context, code string) (*Ride, error)
	// Save persists r only if the stored version equals expectedVersion and
	// then sets r.Version to expectedVersion+1. Otherwise it returns
	// ErrVersionConflict (or ErrNotFound).
	Save(ctx context.Context, r *Ride, expectedVersion int) error
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error)
	AppendTransition(ctx context.Context, t *Transition) error
	History(ctx context.Context, id types.ID) ([]Transition, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const rideColumns = `
	id, status, ride_type, client_name, client_phone, client_email,
	pickup_address, pickup_lat, pickup_lng, dropoff_address, dropoff_lat, dropoff_lng,
	scheduled_at, price_amount, price_currency, access_code, driver_id,
	flight_number, passengers, luggage, notes,
	created_at, assigned_at, accepted_at, departed_at, picked_up_at, started_at,
	completed_at, cancelled_at, cancel_reason, cancelled_by_type, cancelled_by_id, version`

func (s *PgStore) Create(ctx context.Context, r *Ride) error {
	pLat, pLng := pointArgs(r.Pickup.Point)
	dLat, dLng := pointArgs(r.Dropoff.Point)
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, status, ride_type, client_name, client_phone, client_email,
			pickup_address, pickup_lat, pickup_lng, dropoff_address, dropoff_lat, dropoff_lng,
			scheduled_at, price_amount, price_currency, access_code,
			flight_number, passengers, luggage, notes, created_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)`,
		string(r.ID), string(r.Status), string(r.RideType), r.Client.Name, r.Client.Phone, r.Client.Email,
		r.Pickup.Line, pLat, pLng, r.Dropoff.Line, dLat, dLng,
		r.ScheduledAt, r.Price.Amount, r.Price.Currency, r.AccessCode,
		r.FlightNumber, r.Passengers, r.Luggage, r.Notes, r.CreatedAt, r.Version,
	)
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id)))
}

func (s *PgStore) GetByAccessCode(ctx context.Context, code string) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE access_code = $1`, code))
}

func (s *PgStore) Save(ctx context.Context, r *Ride, expectedVersion int) error {
	var cbType, cbID *string
	if r.CancelledBy != nil {
		t, id := string(r.CancelledBy.Type), string(r.CancelledBy.ID)
		cbType, cbID = &t, &id
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
			driver_id = $2,
			assigned_at = $3,
			accepted_at = $4,
			departed_at = $5,
			picked_up_at = $6,
			started_at = $7,
			completed_at = $8,
			cancelled_at = $9,
			cancel_reason = $10,
			cancelled_by_type = $11,
			cancelled_by_id = $12,
			version = version + 1
		WHERE id = $13 AND version = $14`,
		string(r.Status), toStringPtr(r.DriverID),
		r.AssignedAt, r.AcceptedAt, r.DepartedAt, r.PickedUpAt, r.StartedAt,
		r.CompletedAt, r.CancelledAt, r.CancelReason, cbType, cbID,
		string(r.ID), expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		r.Version = expectedVersion + 1
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, string(r.ID)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *PgStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE status = ANY($1)
		ORDER BY scheduled_at, id`, names,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgStore) AppendTransition(ctx context.Context, t *Transition) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_transitions (
			ride_id, from_status, to_status, actor_type, actor_id, driver_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(t.RideID),
		string(t.From),
		string(t.To),
		string(t.Actor.Type),
		string(t.Actor.ID),
		toStringPtr(t.DriverID),
		t.Reason,
		t.At,
	)
	return err
}

func (s *PgStore) History(ctx context.Context, id types.ID) ([]Transition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_type, actor_id, driver_id, reason, created_at
		FROM ride_transitions
		WHERE ride_id = $1
		ORDER BY id`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var driverID *string
		if err := rows.Scan(&t.ID, &t.RideID, &t.From, &t.To, &t.Actor.Type, &t.Actor.ID, &driverID, &t.Reason, &t.At); err != nil {
			return nil, err
		}
		t.DriverID = toIDPtr(driverID)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var pLat, pLng, dLat, dLng *float64
	var driverID, cbType, cbID *string

	err := row.Scan(
		&r.ID, &r.Status, &r.RideType, &r.Client.Name, &r.Client.Phone, &r.Client.Email,
		&r.Pickup.Line, &pLat, &pLng, &r.Dropoff.Line, &dLat, &dLng,
		&r.ScheduledAt, &r.Price.Amount, &r.Price.Currency, &r.AccessCode, &driverID,
		&r.FlightNumber, &r.Passengers, &r.Luggage, &r.Notes,
		&r.CreatedAt, &r.AssignedAt, &r.AcceptedAt, &r.DepartedAt, &r.PickedUpAt, &r.StartedAt,
		&r.CompletedAt, &r.CancelledAt, &r.CancelReason, &cbType, &cbID, &r.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Pickup.Point = toPoint(pLat, pLng)
	r.Dropoff.Point = toPoint(dLat, dLng)
	r.DriverID = toIDPtr(driverID)
	if cbType != nil {
		a := Actor{Type: ActorType(*cbType)}
		if cbID != nil {
			a.ID = types.ID(*cbID)
		}
		r.CancelledBy = &a
	}
	r.ScheduledAt = r.ScheduledAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	for _, ts := range []**time.Time{
		&r.AssignedAt, &r.AcceptedAt, &r.DepartedAt, &r.PickedUpAt,
		&r.StartedAt, &r.CompletedAt, &r.CancelledAt,
	} {
		*ts = utcPtr(*ts)
	}
	return &r, nil
}

func pointArgs(p *types.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func toPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}

// utcPtr normalises optional timestamps read back from the database.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
