// README: Ride history handlers: filtered list and single record for the caller.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/http/middleware"
	"github.com/tejith7/project-bolt/internal/modules/history"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

type HistoryReader interface {
	Get(ctx context.Context, id types.ID) (ride.Ride, error)
	Query(ctx context.Context, f history.Filter, sort history.Sort) ([]ride.Ride, error)
}

type HistoryHandler struct {
	history HistoryReader
	now     func() time.Time
}

func NewHistoryHandler(h HistoryReader) *HistoryHandler {
	return &HistoryHandler{history: h, now: func() time.Time { return time.Now().UTC() }}
}

// List serves ?status=&window=today|week|month&q=&sort=date|price|distance&order=asc|desc&limit=.
// Drivers see the rides they drove; everyone else sees the rides they took.
func (h *HistoryHandler) List(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	f := history.Filter{Status: ride.Status(c.Query("status")), Search: c.Query("q")}
	if middleware.CallerRole(c) == "driver" {
		f.DriverID = uid
	} else {
		f.RiderID = uid
	}
	from, to, err := history.Window(c.Query("window")).Bounds(h.now())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	f.From, f.To = from, to
	if f.Limit, err = queryInt(c, "limit", 0); err != nil {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	sort := history.Sort{Field: history.SortField(c.Query("sort")), Order: history.Order(c.Query("order"))}

	rides, err := h.history.Query(c.Request.Context(), f, sort)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

func (h *HistoryHandler) Get(c *gin.Context) {
	r, err := h.history.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	if r.RiderID != uid && (r.Driver == nil || r.Driver.ID != uid) {
		// Other people's rides look absent.
		writeDomainError(c, history.ErrNotFound)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
