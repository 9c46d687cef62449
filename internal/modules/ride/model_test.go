// README: Ride state machine table tests (no storage).
package ride

import (
	"testing"
	"time"

	"transfer/internal/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// forward path
		{StatusPending, StatusAssigned, true},
		{StatusAssigned, StatusAccepted, true},
		{StatusAccepted, StatusDriverOnWay, true},
		{StatusDriverOnWay, StatusPickedUp, true},
		{StatusPickedUp, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		// shortcuts
		{StatusPending, StatusAccepted, true}, // self-accept
		{StatusAccepted, StatusInProgress, true},
		{StatusDriverOnWay, StatusInProgress, true},
		{StatusPickedUp, StatusCompleted, true},
		{StatusAssigned, StatusPending, true}, // refuse
		// cancels from every non-terminal state
		{StatusPending, StatusCancelled, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusDriverOnWay, StatusCancelled, true},
		{StatusPickedUp, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},
		// terminal states are final
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusCancelled, false},
		// skipping and going back
		{StatusPending, StatusInProgress, false},
		{StatusPending, StatusCompleted, false},
		{StatusAssigned, StatusAssigned, false},
		{StatusAccepted, StatusPending, false},
		{StatusDriverOnWay, StatusCompleted, false},
		{StatusInProgress, StatusPickedUp, false},
		{Status("bogus"), StatusCancelled, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
		if s.Terminal() && len(AllowedTransitions[s]) != 0 {
			t.Fatalf("terminal status %s has outgoing transitions", s)
		}
	}
	if Status("paused").Valid() {
		t.Fatalf("unknown status reported valid")
	}
	if StatusPending.HasDriver() || StatusCancelled.HasDriver() {
		t.Fatalf("pending/cancelled rides carry no driver")
	}
	if !StatusCompleted.HasDriver() || !StatusAssigned.HasDriver() {
		t.Fatalf("assigned..completed rides carry a driver")
	}
}

func TestCheckInvariants(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	d := types.ID("d1")

	ok := &Ride{ID: "r1", Status: StatusAssigned, DriverID: &d, AccessCode: "ABCDEFGH"}
	if err := ok.CheckInvariants(); err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}

	bad := []*Ride{
		{ID: "r2", Status: StatusPending, DriverID: &d, AccessCode: "ABCDEFGH"},
		{ID: "r3", Status: StatusAccepted, AccessCode: "ABCDEFGH"},
		{ID: "r4", Status: StatusCompleted, DriverID: &d, AccessCode: "ABCDEFGH"},
		{ID: "r5", Status: StatusCancelled, CompletedAt: &now, CancelledAt: &now, AccessCode: "ABCDEFGH"},
		{ID: "r6", Status: "unknown", AccessCode: "ABCDEFGH"},
	}
	for _, r := range bad {
		if err := r.CheckInvariants(); err == nil {
			t.Errorf("ride %s: expected invariant violation", r.ID)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := types.ID("d1")
	now := time.Now()
	orig := &Ride{
		ID:         "r1",
		Status:     StatusAssigned,
		DriverID:   &d,
		Pickup:     Address{Line: "Main 1", Point: &types.Point{Lat: 1, Lng: 2}},
		AssignedAt: &now,
	}
	cp := orig.Clone()
	*cp.DriverID = "d2"
	cp.Pickup.Point.Lat = 9
	if *orig.DriverID != "d1" || orig.Pickup.Point.Lat != 1 {
		t.Fatalf("clone shares memory with original")
	}
}
