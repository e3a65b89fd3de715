// README: Driver handlers: pending rides, accept, and the online toggle.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/http/middleware"
	"github.com/tejith7/project-bolt/internal/modules/dispatch"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type Dispatcher interface {
	ListPending(ctx context.Context, q dispatch.PendingQuery) ([]dispatch.Offer, error)
	Accept(ctx context.Context, rideID, driverID types.ID) (ride.Ride, error)
}

type Availability interface {
	GoOnline(ctx context.Context, driverID types.ID, pos types.Point) error
	GoOffline(ctx context.Context, driverID types.ID) error
}

type DriverHandler struct {
	dispatch     Dispatcher
	availability Availability
}

func NewDriverHandler(d Dispatcher, a Availability) *DriverHandler {
	return &DriverHandler{dispatch: d, availability: a}
}

func (h *DriverHandler) ListPending(c *gin.Context) {
	var q dispatch.PendingQuery
	p, near, err := queryPoint(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if near {
		q.Near = &p
	}
	if q.Limit, err = queryInt(c, "limit", 0); err != nil {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	if q.RadiusKm, err = queryFloat(c, "radius_km", 0); err != nil {
		writeError(c, http.StatusBadRequest, "invalid radius_km")
		return
	}

	offers, err := h.dispatch.ListPending(c.Request.Context(), q)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": offers})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	r, err := h.dispatch.Accept(c.Request.Context(), types.ID(id), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type availabilityReq struct {
	Online bool     `json:"online"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	if !req.Online {
		if err := h.availability.GoOffline(c.Request.Context(), uid); err != nil {
			writeDomainError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"online": false})
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng required to go online")
		return
	}
	if err := h.availability.GoOnline(c.Request.Context(), uid, types.Point{Lat: *req.Lat, Lng: *req.Lng}); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"online": true})
}
