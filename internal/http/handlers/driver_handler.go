// README: Driver handlers; the caller is the authenticated driver uid.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transfer/internal/http/middleware"
	"transfer/internal/modules/availability"
	"transfer/internal/modules/events"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

type DriverHandler struct {
	rides    *ride.Service
	pool     *availability.Pool
	location *LocationHandler
	events   *EventsHandler
}

func NewDriverHandler(rides *ride.Service, pool *availability.Pool, loc *LocationHandler, ev *EventsHandler) *DriverHandler {
	return &DriverHandler{rides: rides, pool: pool, location: loc, events: ev}
}

func callerDriver(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

// Available lists pending rides the caller may self-accept.
func (h *DriverHandler) Available(c *gin.Context) {
	rides, err := h.pool.ListAvailableRides(c.Request.Context(), callerDriver(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"rides": newRideViews(rides)})
}

// visible loads a ride the caller may see: pending rides or their own.
func (h *DriverHandler) visible(c *gin.Context) (*ride.Ride, bool) {
	id, ok := rideIDParam(c)
	if !ok {
		return nil, false
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeRideError(c, err)
		return nil, false
	}
	if r.Status != ride.StatusPending && !r.HasDriver(callerDriver(c)) {
		writeRideError(c, ride.ErrNotAssignedDriver)
		return nil, false
	}
	return r, true
}

// assigned loads a ride the caller currently holds.
func (h *DriverHandler) assigned(c *gin.Context) (*ride.Ride, bool) {
	r, ok := h.visible(c)
	if !ok {
		return nil, false
	}
	if !r.HasDriver(callerDriver(c)) {
		writeRideError(c, ride.ErrNotAssignedDriver)
		return nil, false
	}
	return r, true
}

func (h *DriverHandler) Get(c *gin.Context) {
	r, ok := h.visible(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, false))
}

// command runs a driver command against the :id ride and writes the result.
func (h *DriverHandler) command(c *gin.Context, run func(id, uid types.ID) (*ride.Ride, error)) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := run(id, callerDriver(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, false))
}

func (h *DriverHandler) Accept(c *gin.Context) {
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.Accept(c.Request.Context(), ride.AcceptCommand{RideID: id, DriverID: uid})
	})
}

func (h *DriverHandler) SelfAccept(c *gin.Context) {
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.SelfAccept(c.Request.Context(), ride.SelfAcceptCommand{RideID: id, DriverID: uid})
	})
}

func (h *DriverHandler) Refuse(c *gin.Context) {
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.Refuse(c.Request.Context(), ride.RefuseCommand{RideID: id, DriverID: uid})
	})
}

func (h *DriverHandler) Depart(c *gin.Context) {
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.Depart(c.Request.Context(), ride.DepartCommand{RideID: id, DriverID: uid})
	})
}

func (h *DriverHandler) PickUp(c *gin.Context) {
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.PickUp(c.Request.Context(), ride.PickUpCommand{RideID: id, DriverID: uid})
	})
}

func (h *DriverHandler) Start(c *gin.Context) {
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.Start(c.Request.Context(), ride.StartCommand{
			RideID: id,
			Actor:  ride.Actor{Type: ride.ActorDriver, ID: uid},
		})
	})
}

func (h *DriverHandler) Complete(c *gin.Context) {
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.Complete(c.Request.Context(), ride.CompleteCommand{
			RideID: id,
			Actor:  ride.Actor{Type: ride.ActorDriver, ID: uid},
		})
	})
}

func (h *DriverHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if !bindOptional(c, &req) {
		return
	}
	h.command(c, func(id, uid types.ID) (*ride.Ride, error) {
		return h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
			RideID: id,
			Reason: req.Reason,
			Actor:  ride.Actor{Type: ride.ActorDriver, ID: uid},
		})
	})
}

// UpdateLocation accepts GPS samples from the assigned driver only.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	r, ok := h.assigned(c)
	if !ok {
		return
	}
	h.location.update(c, r.ID)
}

func (h *DriverHandler) Location(c *gin.Context) {
	if r, ok := h.assigned(c); ok {
		h.location.get(c, r.ID)
	}
}

func (h *DriverHandler) ETA(c *gin.Context) {
	if r, ok := h.assigned(c); ok {
		h.location.eta(c, r.ID)
	}
}

func (h *DriverHandler) Events(c *gin.Context) {
	if r, ok := h.assigned(c); ok {
		h.events.serve(c, r.ID, events.ChannelDriver, callerDriver(c))
	}
}
