// README: Admin handlers: ride board, candidate drivers, assignment and overrides.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"transfer/internal/http/middleware"
	"transfer/internal/modules/availability"
	"transfer/internal/modules/events"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

type AdminHandler struct {
	rides    *ride.Service
	pool     *availability.Pool
	location *LocationHandler
	events   *EventsHandler
}

func NewAdminHandler(rides *ride.Service, pool *availability.Pool, loc *LocationHandler, ev *EventsHandler) *AdminHandler {
	return &AdminHandler{rides: rides, pool: pool, location: loc, events: ev}
}

func (h *AdminHandler) actor(c *gin.Context) ride.Actor {
	return ride.Actor{Type: ride.ActorAdmin, ID: types.ID(middleware.CallerUID(c))}
}

// List accepts ?status=pending,assigned; no filter returns every ride.
func (h *AdminHandler) List(c *gin.Context) {
	var statuses []ride.Status
	if q := c.Query("status"); q != "" {
		for _, s := range strings.Split(q, ",") {
			statuses = append(statuses, ride.Status(strings.TrimSpace(s)))
		}
	}
	rides, err := h.rides.List(c.Request.Context(), statuses...)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"rides": newRideViews(rides)})
}

func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, true))
}

func (h *AdminHandler) History(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	hist, err := h.rides.History(c.Request.Context(), id)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"transitions": newTransitionViews(hist)})
}

// Drivers lists candidates for a pending ride, least loaded first.
func (h *AdminHandler) Drivers(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	candidates, err := h.pool.ListAvailableFor(c.Request.Context(), id)
	if err != nil {
		writeRideError(c, err)
		return
	}
	out := make([]map[string]any, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, map[string]any{
			"driver_id":    cand.Driver.ID,
			"name":         cand.Driver.Name,
			"active_rides": cand.ActiveRides,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"drivers": out})
}

type assignReq struct {
	DriverID string `json:"driver_id"`
}

func (h *AdminHandler) Assign(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "driver_id is required")
		return
	}
	r, err := h.rides.Assign(c.Request.Context(), ride.AssignCommand{
		RideID:   id,
		DriverID: types.ID(req.DriverID),
		AdminID:  types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, true))
}

func (h *AdminHandler) Start(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Start(c.Request.Context(), ride.StartCommand{RideID: id, Actor: h.actor(c)})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, true))
}

func (h *AdminHandler) Complete(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Complete(c.Request.Context(), ride.CompleteCommand{RideID: id, Actor: h.actor(c)})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, true))
}

func (h *AdminHandler) Cancel(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	var req cancelReq
	if !bindOptional(c, &req) {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{RideID: id, Reason: req.Reason, Actor: h.actor(c)})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, true))
}

func (h *AdminHandler) Location(c *gin.Context) {
	if id, ok := rideIDParam(c); ok {
		h.location.get(c, id)
	}
}

// Trail replays every position recorded for the ride.
func (h *AdminHandler) Trail(c *gin.Context) {
	if id, ok := rideIDParam(c); ok {
		h.location.trail(c, id)
	}
}

func (h *AdminHandler) ETA(c *gin.Context) {
	if id, ok := rideIDParam(c); ok {
		h.location.eta(c, id)
	}
}

func (h *AdminHandler) Events(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	if _, err := h.rides.Get(c.Request.Context(), id); err != nil {
		writeRideError(c, err)
		return
	}
	h.events.serve(c, id, events.ChannelAdmin, "")
}
