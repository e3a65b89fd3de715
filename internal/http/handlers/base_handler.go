// README: Base handler utilities (JSON helpers, request shapes, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/maps"
	"github.com/tejith7/project-bolt/internal/modules/history"
	"github.com/tejith7/project-bolt/internal/modules/identity"
	"github.com/tejith7/project-bolt/internal/modules/matching"
	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	// Retry tells the client the failure is transient and the same call may be repeated.
	Retry bool `json:"retry,omitempty"`
}

type locationReq struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func (l locationReq) location() (types.Location, bool) {
	if l.Lat == nil || l.Lng == nil {
		return types.Location{}, false
	}
	loc := types.Location{Address: l.Address, Lat: *l.Lat, Lng: *l.Lng}
	return loc, loc.Point().Valid()
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module errors to status codes in one place.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest), errors.Is(err, ride.ErrEstimation),
		errors.Is(err, pricing.ErrEstimation), errors.Is(err, pricing.ErrUnknownClass),
		errors.Is(err, history.ErrBadQuery), errors.Is(err, identity.ErrBadProfile):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrForbidden), errors.Is(err, matching.ErrNotDriver):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, history.ErrNotFound),
		errors.Is(err, identity.ErrNotFound), errors.Is(err, maps.ErrNoResults):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrInvalidTransition), errors.Is(err, ride.ErrAlreadyMatched),
		errors.Is(err, ride.ErrActiveRide), errors.Is(err, ride.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrSyncFailure):
		writeJSON(c, http.StatusServiceUnavailable, errorResponse{Error: "ride service unavailable", Retry: true})
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// queryPoint reads ?lat=&lng=; ok is false when either is absent.
func queryPoint(c *gin.Context) (p types.Point, ok bool, err error) {
	latS, lngS := c.Query("lat"), c.Query("lng")
	if latS == "" && lngS == "" {
		return types.Point{}, false, nil
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lng, err2 := strconv.ParseFloat(lngS, 64)
	p = types.Point{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || !p.Valid() {
		return types.Point{}, false, errors.New("invalid lat/lng")
	}
	return p, true, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}
