// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transfer/internal/modules/location"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

type errorResponse struct {
	Error         string     `json:"error"`
	Code          string     `json:"code,omitempty"`
	EarliestStart *time.Time `json:"earliest_start,omitempty"`
}

// statusTooEarly is RFC 8470 "425 Too Early".
const statusTooEarly = 425

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeRideError maps dispatch errors to status codes. Conflicts and lost
// races ask the caller to refresh; too-early carries the earliest start.
func writeRideError(c *gin.Context, err error) {
	var early *ride.TooEarlyError
	switch {
	case errors.As(err, &early):
		at := early.EarliestStart
		writeJSON(c, statusTooEarly, errorResponse{Error: err.Error(), Code: "too_early", EarliestStart: &at})
	case errors.Is(err, ride.ErrBadRequest):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
	case errors.Is(err, location.ErrInvalidCoordinates):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_coordinates"})
	case errors.Is(err, ride.ErrNotAssignedDriver):
		writeJSON(c, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "not_assigned_driver"})
	case errors.Is(err, ride.ErrNotFound):
		writeJSON(c, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, ride.ErrNotAvailable):
		writeJSON(c, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_available"})
	case errors.Is(err, ride.ErrInvalidTransition):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, ride.ErrInvalidState):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_state"})
	case errors.Is(err, ride.ErrConflict):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Code: "conflict"})
	case errors.Is(err, ride.ErrAlreadyTaken):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Code: "already_taken"})
	case errors.Is(err, ride.ErrDriverNotEligible):
		writeJSON(c, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "driver_not_eligible"})
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func rideIDParam(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if id == "" || len(id) > 64 {
		writeError(c, http.StatusBadRequest, "missing or malformed ride id")
		return "", false
	}
	return types.ID(id), true
}

type cancelReq struct {
	Reason string `json:"reason"`
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
