// Package recommend exposes the tenant-facing recommendation endpoint. The
// diet-optimization algorithm itself is an external collaborator reached
// through the Recommender interface; this package owns only the HTTP boundary:
// payload validation, principal checks, and error sanitization. The route is
// wrapped by the per-organization rate limiter, so every admitted call has
// already consumed one quota slot.
package recommend

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/feed"
	"github.com/feedbase/feedbase/internal/middleware"
)

// Request describes one recommendation query. CountryID selects the feed
// catalogue; the animal parameters drive the external optimizer.
type Request struct {
	CountryID    string  `json:"country_id" binding:"required"`
	AnimalType   string  `json:"animal_type" binding:"required"`
	BodyWeightKg float64 `json:"body_weight_kg" binding:"required,gt=0"`
	MilkYieldKg  float64 `json:"milk_yield_kg" binding:"gte=0"`
}

// Ration is one feed with its recommended daily quantity.
type Ration struct {
	Feed       feed.Feed `json:"feed"`
	QuantityKg float64   `json:"quantity_kg"`
}

// Recommendation is the optimizer's answer for one Request.
type Recommendation struct {
	Rations       []Ration `json:"rations"`
	TotalCost     float64  `json:"total_cost"`
	Supplementary string   `json:"supplementary,omitempty"`
}

// ErrNoRecommendation is returned by a Recommender when no feasible ration
// exists for the request (e.g. no feeds registered for the country). Mapped
// to 404 rather than 500.
var ErrNoRecommendation = errors.New("no feasible recommendation")

// Recommender computes a ration recommendation. Implementations live outside
// this repository and typically read the country's catalogue through
// feed.Store.
type Recommender interface {
	Recommend(ctx context.Context, req Request) (*Recommendation, error)
}

// Handler serves POST /api/v1/recommend.
type Handler struct {
	rec Recommender
}

// NewHandler creates a Handler. rec may be nil when no recommendation engine
// is configured; the route then answers 503.
func NewHandler(rec Recommender) *Handler {
	return &Handler{rec: rec}
}

// @Summary      Recommend a feed ration
// @Description  Computes a ration recommendation for the authenticated organization. Counts against the organization's hourly quota.
// @Tags         Recommendation
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  Request  true  "Recommendation query"
// @Success      200  {object}  Recommendation
// @Failure      400  {object}  map[string]interface{}  "Invalid request payload"
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid credential"
// @Failure      429  {object}  map[string]interface{}  "Hourly quota exceeded"
// @Router       /api/v1/recommend [post]
func (h *Handler) Recommend(c *gin.Context) {
	if _, ok := middleware.GetPrincipal(c); !ok {
		apierror.Authentication(c, "no principal in context")
		return
	}

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, err.Error())
		return
	}

	if h.rec == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Recommendation engine not configured"})
		return
	}

	result, err := h.rec.Recommend(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrNoRecommendation) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No feasible recommendation for this request"})
			return
		}
		apierror.Internal(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
