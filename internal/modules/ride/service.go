// README: Ride service is the dispatch engine: validates transitions, resolves assignment races, emits events.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"transfer/internal/clock"
	"transfer/internal/logger"
	"transfer/internal/metrics"
	"transfer/internal/modules/driver"
	"transfer/internal/modules/events"
	"transfer/internal/types"
)

// Geocoder resolves a free-form address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

const DefaultLeadTime = 2 * time.Hour

type Options struct {
	// MaxRetries bounds re-reads after an optimistic version conflict.
	MaxRetries int
	// LeadTime is how long before ScheduledAt a ride may be started.
	// Zero means DefaultLeadTime.
	LeadTime time.Duration
	// AdminStartOverride lets admin actors start rides before the lead-time gate.
	AdminStartOverride bool
}

type Deps struct {
	Store    Store
	Drivers  driver.Directory
	Events   events.Publisher
	Clock    clock.Clock
	Geocoder Geocoder
	Log      logger.Logger
	Metrics  *metrics.Metrics
}

type Service struct {
	store    Store
	drivers  driver.Directory
	events   events.Publisher
	clock    clock.Clock
	geocoder Geocoder
	log      logger.Logger
	metrics  *metrics.Metrics
	opts     Options
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
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.LeadTime <= 0 {
		opts.LeadTime = DefaultLeadTime
	}
	return &Service{
		store:    deps.Store,
		drivers:  deps.Drivers,
		events:   deps.Events,
		clock:    deps.Clock,
		geocoder: deps.Geocoder,
		log:      deps.Log,
		metrics:  deps.Metrics,
		opts:     opts,
	}
}

type CreateCommand struct {
	RideType     RideType
	Client       Contact
	Pickup       Address
	Dropoff      Address
	ScheduledAt  time.Time
	Price        types.Money
	FlightNumber string
	Passengers   int
	Luggage      int
	Notes        string
}

type AssignCommand struct {
	RideID   types.ID
	DriverID types.ID
	AdminID  types.ID
}

type AcceptCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type SelfAcceptCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type RefuseCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type DepartCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type PickUpCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type StartCommand struct {
	RideID types.ID
	Actor  Actor
}

type CompleteCommand struct {
	RideID types.ID
	Actor  Actor
}

type CancelCommand struct {
	RideID types.ID
	Reason string
	Actor  Actor
}

func (c CreateCommand) validate(now time.Time) error {
	switch {
	case !c.RideType.Valid():
		return fmt.Errorf("%w: unknown ride type %q", ErrBadRequest, c.RideType)
	case c.Client.Name == "" || c.Client.Phone == "":
		return fmt.Errorf("%w: client name and phone are required", ErrBadRequest)
	case c.Pickup.Line == "" || c.Dropoff.Line == "":
		return fmt.Errorf("%w: pickup and dropoff addresses are required", ErrBadRequest)
	case c.Pickup.Point != nil && !c.Pickup.Point.Valid(), c.Dropoff.Point != nil && !c.Dropoff.Point.Valid():
		return fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	case c.ScheduledAt.IsZero() || c.ScheduledAt.Before(now):
		return fmt.Errorf("%w: scheduled time must be in the future", ErrBadRequest)
	case c.Price.Amount < 0:
		return fmt.Errorf("%w: negative price", ErrBadRequest)
	case c.Passengers < 0 || c.Luggage < 0:
		return fmt.Errorf("%w: negative passenger or luggage count", ErrBadRequest)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	now := s.clock.Now()
	if err := cmd.validate(now); err != nil {
		s.metrics.CommandError("create")
		return nil, err
	}
	s.locate(ctx, &cmd.Pickup)
	s.locate(ctx, &cmd.Dropoff)

	code, err := NewAccessCode()
	if err != nil {
		return nil, fmt.Errorf("generate access code: %w", err)
	}
	if cmd.Passengers == 0 {
		cmd.Passengers = 1
	}
	r := &Ride{
		ID:           types.NewID(),
		Status:       StatusPending,
		RideType:     cmd.RideType,
		Client:       cmd.Client,
		Pickup:       cmd.Pickup,
		Dropoff:      cmd.Dropoff,
		ScheduledAt:  cmd.ScheduledAt.UTC(),
		Price:        cmd.Price,
		AccessCode:   code,
		FlightNumber: cmd.FlightNumber,
		Passengers:   cmd.Passengers,
		Luggage:      cmd.Luggage,
		Notes:        cmd.Notes,
		CreatedAt:    now.UTC(),
		Version:      0,
	}
	if err := s.store.Create(ctx, r); err != nil {
		s.metrics.CommandError("create")
		return nil, err
	}
	return r.Clone(), nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

// List returns rides in any of the given statuses, soonest pickup first.
func (s *Service) List(ctx context.Context, statuses ...Status) ([]*Ride, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, st)
		}
	}
	if len(statuses) == 0 {
		statuses = AllStatuses
	}
	return s.store.ListByStatus(ctx, statuses...)
}

func (s *Service) History(ctx context.Context, id types.ID) ([]Transition, error) {
	return s.store.History(ctx, id)
}

func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Ride, error) {
	d, err := s.lookupDriver(ctx, cmd.DriverID)
	if err != nil {
		s.metrics.CommandError("assign")
		return nil, err
	}
	if !d.Assignable() {
		s.metrics.CommandError("assign")
		return nil, ErrDriverNotEligible
	}
	actor := Actor{Type: ActorAdmin, ID: cmd.AdminID}
	return s.apply(ctx, "assign", cmd.RideID, actor, "", func(r *Ride, now time.Time) error {
		if r.Status != StatusPending {
			return &TransitionError{From: r.Status, To: StatusAssigned}
		}
		r.Status = StatusAssigned
		r.DriverID = idPtr(cmd.DriverID)
		r.AssignedAt = &now
		return nil
	})
}

func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	actor := Actor{Type: ActorDriver, ID: cmd.DriverID}
	return s.apply(ctx, "accept", cmd.RideID, actor, "", func(r *Ride, now time.Time) error {
		if r.Status != StatusAssigned {
			return &TransitionError{From: r.Status, To: StatusAccepted}
		}
		if !r.HasDriver(cmd.DriverID) {
			return ErrNotAssignedDriver
		}
		r.Status = StatusAccepted
		r.AcceptedAt = &now
		return nil
	})
}

// SelfAccept lets a pool driver take a pending ride directly. Of several
// drivers racing for the same ride exactly one wins; the rest get ErrAlreadyTaken.
func (s *Service) SelfAccept(ctx context.Context, cmd SelfAcceptCommand) (*Ride, error) {
	d, err := s.lookupDriver(ctx, cmd.DriverID)
	if err != nil {
		s.metrics.CommandError("self_accept")
		return nil, err
	}
	if !d.InPool() {
		s.metrics.CommandError("self_accept")
		return nil, ErrDriverNotEligible
	}
	busy, err := s.onTheRoad(ctx, cmd.DriverID)
	if err != nil {
		s.metrics.CommandError("self_accept")
		return nil, err
	}
	if busy {
		s.metrics.CommandError("self_accept")
		return nil, ErrDriverNotEligible
	}
	actor := Actor{Type: ActorDriver, ID: cmd.DriverID}
	r, err := s.apply(ctx, "self_accept", cmd.RideID, actor, "", func(r *Ride, now time.Time) error {
		if r.Status != StatusPending {
			if r.DriverID != nil && !r.HasDriver(cmd.DriverID) {
				return ErrAlreadyTaken
			}
			return &TransitionError{From: r.Status, To: StatusAccepted}
		}
		r.Status = StatusAccepted
		r.DriverID = idPtr(cmd.DriverID)
		r.AssignedAt = &now
		r.AcceptedAt = &now
		return nil
	})
	if errors.Is(err, ErrConflict) {
		if cur, gerr := s.store.Get(ctx, cmd.RideID); gerr == nil && cur.DriverID != nil && !cur.HasDriver(cmd.DriverID) {
			return nil, ErrAlreadyTaken
		}
	}
	return r, err
}

// Refuse hands an assigned ride back to the pool. The driver's own
// availability is left to the driver directory.
func (s *Service) Refuse(ctx context.Context, cmd RefuseCommand) (*Ride, error) {
	actor := Actor{Type: ActorDriver, ID: cmd.DriverID}
	return s.apply(ctx, "refuse", cmd.RideID, actor, "", func(r *Ride, now time.Time) error {
		if r.Status != StatusAssigned {
			return &TransitionError{From: r.Status, To: StatusPending}
		}
		if !r.HasDriver(cmd.DriverID) {
			return ErrNotAssignedDriver
		}
		r.Status = StatusPending
		r.DriverID = nil
		r.AssignedAt = nil
		return nil
	})
}

func (s *Service) Depart(ctx context.Context, cmd DepartCommand) (*Ride, error) {
	actor := Actor{Type: ActorDriver, ID: cmd.DriverID}
	return s.apply(ctx, "depart", cmd.RideID, actor, "", func(r *Ride, now time.Time) error {
		if r.Status != StatusAccepted {
			return &TransitionError{From: r.Status, To: StatusDriverOnWay}
		}
		if !r.HasDriver(cmd.DriverID) {
			return ErrNotAssignedDriver
		}
		r.Status = StatusDriverOnWay
		r.DepartedAt = &now
		return nil
	})
}

func (s *Service) PickUp(ctx context.Context, cmd PickUpCommand) (*Ride, error) {
	actor := Actor{Type: ActorDriver, ID: cmd.DriverID}
	return s.apply(ctx, "pick_up", cmd.RideID, actor, "", func(r *Ride, now time.Time) error {
		if r.Status != StatusDriverOnWay {
			return &TransitionError{From: r.Status, To: StatusPickedUp}
		}
		if !r.HasDriver(cmd.DriverID) {
			return ErrNotAssignedDriver
		}
		r.Status = StatusPickedUp
		r.PickedUpAt = &now
		return nil
	})
}

// Start moves the ride in progress once now is within LeadTime of the
// scheduled pickup.
func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Ride, error) {
	return s.apply(ctx, "start", cmd.RideID, cmd.Actor, "", func(r *Ride, now time.Time) error {
		switch r.Status {
		case StatusAccepted, StatusDriverOnWay, StatusPickedUp:
		default:
			return &TransitionError{From: r.Status, To: StatusInProgress}
		}
		if cmd.Actor.Type == ActorDriver && !r.HasDriver(cmd.Actor.ID) {
			return ErrNotAssignedDriver
		}
		earliest := r.ScheduledAt.Add(-s.opts.LeadTime)
		bypass := cmd.Actor.Type == ActorAdmin && s.opts.AdminStartOverride
		if now.Before(earliest) && !bypass {
			return &TooEarlyError{EarliestStart: earliest}
		}
		r.Status = StatusInProgress
		r.StartedAt = &now
		return nil
	})
}

// Complete is idempotent: completing a completed ride returns it unchanged.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	return s.apply(ctx, "complete", cmd.RideID, cmd.Actor, "", func(r *Ride, now time.Time) error {
		if r.Status == StatusCompleted {
			return errUnchanged
		}
		if r.Status != StatusInProgress && r.Status != StatusPickedUp {
			return &TransitionError{From: r.Status, To: StatusCompleted}
		}
		if cmd.Actor.Type == ActorDriver && !r.HasDriver(cmd.Actor.ID) {
			return ErrNotAssignedDriver
		}
		r.Status = StatusCompleted
		r.CompletedAt = &now
		return nil
	})
}

// Cancel is accepted from every non-terminal state and is idempotent on
// cancelled rides. The driver reference is cleared; history keeps it.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	return s.apply(ctx, "cancel", cmd.RideID, cmd.Actor, cmd.Reason, func(r *Ride, now time.Time) error {
		if r.Status == StatusCancelled {
			return errUnchanged
		}
		if r.Status.Terminal() {
			return &TransitionError{From: r.Status, To: StatusCancelled}
		}
		if cmd.Actor.Type == ActorDriver && !r.HasDriver(cmd.Actor.ID) {
			return ErrNotAssignedDriver
		}
		actor := cmd.Actor
		r.Status = StatusCancelled
		r.CancelledAt = &now
		r.CancelledBy = &actor
		if cmd.Reason != "" {
			reason := cmd.Reason
			r.CancelReason = &reason
		}
		r.DriverID = nil
		return nil
	})
}

// errUnchanged marks an idempotent no-op inside a change func.
var errUnchanged = errors.New("ride unchanged")

type change func(r *Ride, now time.Time) error

func (s *Service) apply(ctx context.Context, command string, id types.ID, actor Actor, reason string, fn change) (*Ride, error) {
	r, err := s.transition(ctx, id, actor, reason, fn)
	if err != nil {
		s.metrics.CommandError(command)
	}
	return r, err
}

// transition runs one read-modify-write against the store, re-reading on
// version conflicts up to MaxRetries times.
func (s *Service) transition(ctx context.Context, id types.ID, actor Actor, reason string, fn change) (*Ride, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := s.clock.Now().UTC()
		next := cur.Clone()
		if err := fn(next, now); err != nil {
			if errors.Is(err, errUnchanged) {
				return cur, nil
			}
			return nil, err
		}
		if !CanTransition(cur.Status, next.Status) {
			return nil, &TransitionError{From: cur.Status, To: next.Status}
		}

		err = s.store.Save(ctx, next, cur.Version)
		if errors.Is(err, ErrVersionConflict) {
			if attempt >= s.opts.MaxRetries {
				return nil, ErrConflict
			}
			s.metrics.ConflictRetry()
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.Transition(string(cur.Status), string(next.Status))
		s.record(ctx, cur, next, actor, reason, now)
		return next.Clone(), nil
	}
}

// record appends history and emits the event for a persisted transition.
// Neither step can undo the transition, so a failed history write is logged
// and counted but not returned.
func (s *Service) record(ctx context.Context, prev, next *Ride, actor Actor, reason string, now time.Time) {
	driverID := next.DriverID
	if driverID == nil {
		driverID = prev.DriverID
	}
	err := s.store.AppendTransition(ctx, &Transition{
		RideID:   next.ID,
		From:     prev.Status,
		To:       next.Status,
		Actor:    actor,
		DriverID: driverID,
		Reason:   reason,
		At:       now,
	})
	if err != nil {
		s.metrics.HistoryWriteError()
		s.log.Error("ride history append failed",
			"ride_id", next.ID, "from", prev.Status, "to", next.Status, "version", next.Version, "error", err)
	}

	payload := map[string]any{
		"from_status": string(prev.Status),
		"actor_type":  string(actor.Type),
	}
	if driverID != nil {
		payload["driver_id"] = string(*driverID)
	}
	if reason != "" {
		payload["reason"] = reason
	}
	s.events.Publish(ctx, events.Event{
		RideID:     next.ID,
		Type:       eventType(next.Status),
		Status:     string(next.Status),
		Version:    next.Version,
		OccurredAt: now,
		Payload:    payload,
	})
}

func eventType(to Status) events.Type {
	switch to {
	case StatusAssigned:
		return events.TypeAssigned
	case StatusAccepted:
		return events.TypeAccepted
	case StatusPending:
		return events.TypeRefused
	case StatusDriverOnWay:
		return events.TypeDriverOnWay
	case StatusPickedUp:
		return events.TypePickedUp
	case StatusInProgress:
		return events.TypeStarted
	case StatusCompleted:
		return events.TypeCompleted
	default:
		return events.TypeCancelled
	}
}

func (s *Service) lookupDriver(ctx context.Context, id types.ID) (*driver.Driver, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing driver id", ErrBadRequest)
	}
	d, err := s.drivers.GetDriver(ctx, id)
	if errors.Is(err, driver.ErrNotFound) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// onTheRoad reports whether the driver is currently serving another ride.
func (s *Service) onTheRoad(ctx context.Context, driverID types.ID) (bool, error) {
	active, err := s.store.ListByStatus(ctx, OnTheRoadStatuses...)
	if err != nil {
		return false, err
	}
	for _, r := range active {
		if r.HasDriver(driverID) {
			return true, nil
		}
	}
	return false, nil
}

// locate fills missing coordinates; they are optional so lookup failures are ignored.
func (s *Service) locate(ctx context.Context, a *Address) {
	if a.Point != nil || s.geocoder == nil {
		return
	}
	p, err := s.geocoder.Geocode(ctx, a.Line)
	if err != nil || !p.Valid() {
		return
	}
	a.Point = &p
}

func idPtr(id types.ID) *types.ID {
	return &id
}
