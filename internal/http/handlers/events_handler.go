// README: Websocket event stream; every connection starts with a ride snapshot.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"transfer/internal/logger"
	"transfer/internal/modules/events"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

// EventStream is the subscription side of the broadcaster.
type EventStream interface {
	Subscribe(rideID types.ID, ch events.Channel, sub events.Subscriber) (func(), error)
	Sequence(rideID types.ID) int64
}

type EventsHandler struct {
	rides  *ride.Service
	stream EventStream
	log    logger.Logger
}

func NewEventsHandler(rides *ride.Service, stream EventStream, log logger.Logger) *EventsHandler {
	return &EventsHandler{rides: rides, stream: stream, log: log}
}

type snapshotMessage struct {
	Type     events.Type `json:"type"`
	RideID   types.ID    `json:"ride_id"`
	Status   ride.Status `json:"new_status"`
	Sequence int64       `json:"sequence_number"`
	At       time.Time   `json:"timestamp"`
	Ride     rideView    `json:"ride"`
}

// serve upgrades the request, subscribes, writes the snapshot and only then
// lets queued events through. Events with a sequence number at or below the
// snapshot's are already reflected in it. A non-empty holder is a driver
// whose stream ends once the ride is no longer theirs.
func (h *EventsHandler) serve(c *gin.Context, rideID types.ID, ch events.Channel, holder types.ID) {
	conn, err := events.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "ride_id", rideID, "error", err)
		return
	}
	sub := events.NewWSSubscriber(conn)
	defer sub.Close()
	if holder != "" {
		sub.CloseAfter(events.ReleasesDriver(holder))
	}

	unsubscribe, err := h.stream.Subscribe(rideID, ch, sub)
	if err != nil {
		h.log.Warn("event subscribe failed", "ride_id", rideID, "error", err)
		return
	}
	defer unsubscribe()

	// Read the sequence first: anything published up to it is already persisted.
	seq := h.stream.Sequence(rideID)
	r, err := h.rides.Get(c.Request.Context(), rideID)
	if err != nil {
		h.log.Warn("snapshot read failed", "ride_id", rideID, "error", err)
		return
	}
	snapshot := snapshotMessage{
		Type:     events.TypeSnapshot,
		RideID:   r.ID,
		Status:   r.Status,
		Sequence: seq,
		At:       time.Now().UTC(),
		Ride:     newRideView(r, false),
	}
	if err := sub.WriteJSON(snapshot); err != nil {
		return
	}
	if holder != "" && !r.HasDriver(holder) {
		sub.Release()
		return
	}
	sub.Open()
	h.log.Debug("event stream opened", "ride_id", rideID, "channel", ch, "subscriber", sub.ID())
	sub.Serve(c.Request.Context())
}
