// README: Fare quotes for every ride class, recomputed from scratch on each call.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/types"
)

type Pricer interface {
	Quote(ctx context.Context, pickup, destination types.Point, class pricing.RideClass) (pricing.Quote, error)
	Classes(ctx context.Context) []pricing.Rate
}

type QuoteHandler struct {
	pricing Pricer
}

func NewQuoteHandler(p Pricer) *QuoteHandler {
	return &QuoteHandler{pricing: p}
}

type quoteReq struct {
	Pickup      locationReq       `json:"pickup"`
	Destination locationReq       `json:"destination"`
	Class       pricing.RideClass `json:"class"`
}

type classQuote struct {
	pricing.Rate
	pricing.Quote
}

// Create quotes one class when given, otherwise every class.
func (h *QuoteHandler) Create(c *gin.Context) {
	var req quoteReq
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

	ctx := c.Request.Context()
	var out []classQuote
	for _, rate := range h.pricing.Classes(ctx) {
		if req.Class != "" && rate.Class != req.Class {
			continue
		}
		q, err := h.pricing.Quote(ctx, pickup.Point(), dest.Point(), rate.Class)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		out = append(out, classQuote{Rate: rate, Quote: q})
	}
	if len(out) == 0 {
		writeError(c, http.StatusBadRequest, "unknown ride class")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"quotes": out})
}
