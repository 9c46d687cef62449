// README: Availability pool tests over the in-memory ride store and driver directory.
package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"transfer/internal/clock"
	"transfer/internal/modules/driver"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

var baseTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	rides   *ride.Service
	store   *ride.MemStore
	drivers *driver.MemStore
	pool    *Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: ride.NewMemStore(),
		drivers: driver.NewMemStore(
			driver.Driver{ID: "d1", Verified: true, Status: driver.StatusAvailable},
			driver.Driver{ID: "d2", Verified: true, Status: driver.StatusAvailable},
			driver.Driver{ID: "d3", Verified: true, Status: driver.StatusAvailable},
			driver.Driver{ID: "d4", Verified: false, Status: driver.StatusAvailable},
			driver.Driver{ID: "d5", Verified: true, Status: driver.StatusOnBreak},
		),
	}
	f.rides = ride.NewService(ride.Deps{
		Store:   f.store,
		Drivers: f.drivers,
		Clock:   clock.NewManual(baseTime),
	}, ride.Options{MaxRetries: 3, LeadTime: 2 * time.Hour})
	f.pool = NewPool(f.store, f.drivers)
	return f
}

func (f *fixture) create(t *testing.T, in time.Duration) *ride.Ride {
	t.Helper()
	r, err := f.rides.Create(context.Background(), ride.CreateCommand{
		RideType:    ride.RideCityToAirport,
		Client:      ride.Contact{Name: "Ola", Phone: "500"},
		Pickup:      ride.Address{Line: "Home"},
		Dropoff:     ride.Address{Line: "Airport"},
		ScheduledAt: baseTime.Add(in),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func ids(cs []Candidate) []types.ID {
	out := make([]types.ID, len(cs))
	for i, c := range cs {
		out[i] = c.Driver.ID
	}
	return out
}

func TestListAvailableForOrdersByLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// d1 carries two queued rides, d2 one, d3 none.
	for _, did := range []types.ID{"d1", "d1", "d2"} {
		r := f.create(t, time.Hour)
		if _, err := f.rides.Assign(ctx, ride.AssignCommand{RideID: r.ID, DriverID: did}); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}
	target := f.create(t, 3*time.Hour)

	got, err := f.pool.ListAvailableFor(ctx, target.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []types.ID{"d3", "d2", "d1"}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", ids(got), want)
	}
	for i := range want {
		if got[i].Driver.ID != want[i] {
			t.Fatalf("candidates = %v, want %v", ids(got), want)
		}
	}
	if got[2].ActiveRides != 2 {
		t.Fatalf("d1 load = %d, want 2", got[2].ActiveRides)
	}
}

func TestListAvailableForSkipsDriversOnTheRoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	busy := f.create(t, time.Hour)
	if _, err := f.rides.SelfAccept(ctx, ride.SelfAcceptCommand{RideID: busy.ID, DriverID: "d2"}); err != nil {
		t.Fatalf("self accept: %v", err)
	}
	if _, err := f.rides.Depart(ctx, ride.DepartCommand{RideID: busy.ID, DriverID: "d2"}); err != nil {
		t.Fatalf("depart: %v", err)
	}
	target := f.create(t, 2*time.Hour)

	got, err := f.pool.ListAvailableFor(ctx, target.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, c := range got {
		if c.Driver.ID == "d2" {
			t.Fatalf("driver on the way listed as available")
		}
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %v, want [d1 d3]", ids(got))
	}
}

func TestListAvailableRidesHiddenWhileOnTheRoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, time.Hour)
	f.create(t, 2*time.Hour)
	if _, err := f.rides.SelfAccept(ctx, ride.SelfAcceptCommand{RideID: first.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("self accept: %v", err)
	}
	// Accepted but not yet departed: still offered the open ride.
	list, err := f.pool.ListAvailableRides(ctx, "d1")
	if err != nil || len(list) != 1 {
		t.Fatalf("queued driver: %d rides, err=%v", len(list), err)
	}

	if _, err := f.rides.Depart(ctx, ride.DepartCommand{RideID: first.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("depart: %v", err)
	}
	list, err = f.pool.ListAvailableRides(ctx, "d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("driver on the way offered %d rides", len(list))
	}
	if list, _ := f.pool.ListAvailableRides(ctx, "d2"); len(list) != 1 {
		t.Fatalf("idle driver offered %d rides, want 1", len(list))
	}
}

func TestListAvailableForNonPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, time.Hour)
	if _, err := f.rides.Assign(ctx, ride.AssignCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.pool.ListAvailableFor(ctx, r.ID); !errors.Is(err, ride.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := f.pool.ListAvailableFor(ctx, "missing"); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefusedRideReappears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	later := f.create(t, 5*time.Hour)
	r := f.create(t, time.Hour)

	if _, err := f.rides.Assign(ctx, ride.AssignCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	list, err := f.pool.ListAvailableRides(ctx, "d2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != later.ID {
		t.Fatalf("assigned ride should not be listed: %+v", list)
	}

	if _, err := f.rides.Refuse(ctx, ride.RefuseCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("refuse: %v", err)
	}
	list, err = f.pool.ListAvailableRides(ctx, "d2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != r.ID || list[1].ID != later.ID {
		t.Fatalf("refused ride should be listed first: %+v", list)
	}
}

func TestListAvailableRidesIneligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, time.Hour)

	for _, did := range []types.ID{"d4", "d5"} {
		list, err := f.pool.ListAvailableRides(ctx, did)
		if err != nil {
			t.Fatalf("%s: %v", did, err)
		}
		if len(list) != 0 {
			t.Fatalf("%s should see no rides, got %d", did, len(list))
		}
	}
	if _, err := f.pool.ListAvailableRides(ctx, "ghost"); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
