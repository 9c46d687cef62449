// README: Client handlers; every route is scoped to the ride unlocked by the access code.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transfer/internal/http/middleware"
	"transfer/internal/modules/events"
	"transfer/internal/modules/ride"
)

type ClientHandler struct {
	rides    *ride.Service
	location *LocationHandler
	events   *EventsHandler
}

func NewClientHandler(rides *ride.Service, loc *LocationHandler, ev *EventsHandler) *ClientHandler {
	return &ClientHandler{rides: rides, location: loc, events: ev}
}

func (h *ClientHandler) Get(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), middleware.ScopedRideID(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, true))
}

func (h *ClientHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if !bindOptional(c, &req) {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID: middleware.ScopedRideID(c),
		Reason: req.Reason,
		Actor:  ride.Actor{Type: ride.ActorClient},
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newRideView(r, true))
}

func (h *ClientHandler) Location(c *gin.Context) {
	h.location.get(c, middleware.ScopedRideID(c))
}

func (h *ClientHandler) ETA(c *gin.Context) {
	h.location.eta(c, middleware.ScopedRideID(c))
}

func (h *ClientHandler) Events(c *gin.Context) {
	h.events.serve(c, middleware.ScopedRideID(c), events.ChannelClient, "")
}
