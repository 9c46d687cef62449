// README: Location handlers shared by the driver, client and admin surfaces.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transfer/internal/modules/location"
	"transfer/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type updateLocationReq struct {
	Lat        *float64  `json:"lat"`
	Lng        *float64  `json:"lng"`
	CapturedAt time.Time `json:"captured_at"`
}

func (h *LocationHandler) update(c *gin.Context, rideID types.ID) {
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	applied, err := h.location.UpdateLocation(c.Request.Context(), location.Update{
		RideID:     rideID,
		Lat:        *req.Lat,
		Lng:        *req.Lng,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"applied": applied})
}

func (h *LocationHandler) get(c *gin.Context, rideID types.ID) {
	s, err := h.location.GetLocation(c.Request.Context(), rideID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *LocationHandler) trail(c *gin.Context, rideID types.ID) {
	samples, err := h.location.Trail(c.Request.Context(), rideID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ride_id": rideID, "samples": samples})
}

func (h *LocationHandler) eta(c *gin.Context, rideID types.ID) {
	eta, err := h.location.ETA(c.Request.Context(), rideID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, eta)
}
