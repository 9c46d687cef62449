// README: Public booking endpoint; the response carries the ride's access code.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(rides *ride.Service) *RideHandler {
	return &RideHandler{rides: rides}
}

type addressReq struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func (a addressReq) toAddress() ride.Address {
	out := ride.Address{Line: a.Address}
	if a.Lat != nil && a.Lng != nil {
		out.Point = &types.Point{Lat: *a.Lat, Lng: *a.Lng}
	}
	return out
}

type createRideReq struct {
	RideType string `json:"ride_type"`
	Client   struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	} `json:"client"`
	Pickup       addressReq  `json:"pickup"`
	Dropoff      addressReq  `json:"dropoff"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	Price        types.Money `json:"price"`
	FlightNumber string      `json:"flight_number"`
	Passengers   int         `json:"passengers"`
	Luggage      int         `json:"luggage"`
	Notes        string      `json:"notes"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		RideType:     ride.RideType(req.RideType),
		Client:       ride.Contact{Name: req.Client.Name, Phone: req.Client.Phone, Email: req.Client.Email},
		Pickup:       req.Pickup.toAddress(),
		Dropoff:      req.Dropoff.toAddress(),
		ScheduledAt:  req.ScheduledAt,
		Price:        req.Price,
		FlightNumber: req.FlightNumber,
		Passengers:   req.Passengers,
		Luggage:      req.Luggage,
		Notes:        req.Notes,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, newRideView(r, true))
}
