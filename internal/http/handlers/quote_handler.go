// README: Quote and address search handlers backed by the mapping provider.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/maps"
	"courier/internal/modules/pricing"
)

// PlaceSearcher looks up address suggestions.
type PlaceSearcher interface {
	Search(ctx context.Context, query string) ([]maps.Place, error)
}

type QuoteHandler struct {
	pricing *pricing.Service
	places  PlaceSearcher
}

// NewQuoteHandler accepts a nil places searcher; address search then answers 503.
func NewQuoteHandler(svc *pricing.Service, places PlaceSearcher) *QuoteHandler {
	return &QuoteHandler{pricing: svc, places: places}
}

type quoteReq struct {
	Pickup  string          `json:"pickup" binding:"required"`
	Dropoff string          `json:"dropoff" binding:"required"`
	Package pricing.Package `json:"package"`
}

func (h *QuoteHandler) Quote(c *gin.Context) {
	var req quoteReq
	if !bind(c, &req) {
		return
	}
	q, err := h.pricing.Quote(c.Request.Context(), pricing.QuoteCommand{
		PickupAddress:  req.Pickup,
		DropoffAddress: req.Dropoff,
		Package:        req.Package,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, q)
}

func (h *QuoteHandler) SearchPlaces(c *gin.Context) {
	if h.places == nil {
		writeError(c, http.StatusServiceUnavailable, "unavailable", "address search is not configured")
		return
	}
	q := c.Query("q")
	if q == "" {
		writeError(c, http.StatusBadRequest, "validation", "q is required")
		return
	}
	places, err := h.places.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, http.StatusBadGateway, "unavailable", "address search failed")
		return
	}
	if places == nil {
		places = []maps.Place{}
	}
	writeJSON(c, http.StatusOK, gin.H{"places": places})
}
