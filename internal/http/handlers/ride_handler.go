// README: Rider handlers: request, current ride, observe poll and cancel.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/http/middleware"
	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type RideEngine interface {
	Request(ctx context.Context, cmd ride.RequestCommand) (ride.Ride, error)
	Cancel(ctx context.Context, cmd ride.CancelCommand) (ride.Ride, error)
	Current(ctx context.Context, riderID types.ID) (ride.Ride, error)
}

type Observer interface {
	Observe(ctx context.Context, id types.ID) (ride.Ride, error)
}

type RideHandler struct {
	engine   RideEngine
	observer Observer
}

func NewRideHandler(engine RideEngine, observer Observer) *RideHandler {
	return &RideHandler{engine: engine, observer: observer}
}

type requestRideReq struct {
	Pickup      locationReq       `json:"pickup"`
	Destination locationReq       `json:"destination"`
	Class       pricing.RideClass `json:"class"`
}

type cancelRideReq struct {
	Reason string `json:"reason"`
}

func (h *RideHandler) Request(c *gin.Context) {
	var req requestRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	pickup, ok1 := req.Pickup.location()
	dest, ok2 := req.Destination.location()
	if !ok1 || !ok2 {
		writeError(c, http.StatusBadRequest, "pickup and destination coordinates required")
		return
	}
	r, err := h.engine.Request(c.Request.Context(), ride.RequestCommand{
		RiderID:     types.ID(middleware.CallerUID(c)),
		Pickup:      pickup,
		Destination: dest,
		Class:       req.Class,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Current(c *gin.Context) {
	r, err := h.engine.Current(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if errors.Is(err, ride.ErrNotFound) {
		writeJSON(c, http.StatusOK, gin.H{"ride": nil})
		return
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": r})
}

// Get is the observe poll. Only the rider and the assigned driver may read a ride.
func (h *RideHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	r, err := h.observer.Observe(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	if r.RiderID != uid && (r.Driver == nil || r.Driver.ID != uid) {
		writeDomainError(c, ride.ErrForbidden)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	var req cancelRideReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	r, err := h.engine.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:  types.ID(id),
		RiderID: types.ID(middleware.CallerUID(c)),
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
