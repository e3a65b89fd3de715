// README: Address search and reverse geocoding for the booking form.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/types"
)

type Geocoder interface {
	Search(ctx context.Context, query string, near *types.Point) ([]types.Location, error)
	Reverse(ctx context.Context, p types.Point) (types.Location, error)
}

type PlacesHandler struct {
	geocoder Geocoder
}

// NewPlacesHandler accepts a nil geocoder; the endpoints then answer 503.
func NewPlacesHandler(g Geocoder) *PlacesHandler {
	return &PlacesHandler{geocoder: g}
}

func (h *PlacesHandler) Search(c *gin.Context) {
	if h.geocoder == nil {
		writeError(c, http.StatusServiceUnavailable, "geocoding not configured")
		return
	}
	q := c.Query("q")
	if q == "" {
		writeError(c, http.StatusBadRequest, "missing q")
		return
	}
	p, near, err := queryPoint(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	var bias *types.Point
	if near {
		bias = &p
	}
	results, err := h.geocoder.Search(c.Request.Context(), q, bias)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"results": results})
}

func (h *PlacesHandler) Reverse(c *gin.Context) {
	if h.geocoder == nil {
		writeError(c, http.StatusServiceUnavailable, "geocoding not configured")
		return
	}
	p, ok, err := queryPoint(c)
	if err != nil || !ok {
		writeError(c, http.StatusBadRequest, "lat and lng required")
		return
	}
	loc, err := h.geocoder.Reverse(c.Request.Context(), p)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, loc)
}
