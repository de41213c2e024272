package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
)

// ValuationHandler serves the valuation resource endpoints.
type ValuationHandler struct {
	service appvaluation.Service
	logger  logging.Logger
}

// NewValuationHandler creates a ValuationHandler.
func NewValuationHandler(service appvaluation.Service, log logging.Logger) *ValuationHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ValuationHandler{service: service, logger: log}
}

// RegisterRoutes mounts the valuation endpoints on the given group.
func (h *ValuationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	vr := rg.Group("/valuations")
	vr.POST("", h.Create)
	vr.POST("/async", h.CreateAsync)
	vr.GET("", h.List)
	vr.GET("/:id", h.Get)
	vr.POST("/:id/listings", h.IngestListings)
}

// Create handles POST /api/v1/valuations.  The valuation is computed
// synchronously; identical facts return the previously stored result.
func (h *ValuationHandler) Create(c *gin.Context) {
	var input appvaluation.EvaluateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body"))
		return
	}

	dto, err := h.service.Evaluate(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, dto)
}

// CreateAsync handles POST /api/v1/valuations/async.  The valuation is
// accepted in pending state and handed to the worker via the event bus.
func (h *ValuationHandler) CreateAsync(c *gin.Context) {
	var input appvaluation.EvaluateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body"))
		return
	}

	dto, err := h.service.Request(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, dto)
}

// Get handles GET /api/v1/valuations/:id.
func (h *ValuationHandler) Get(c *gin.Context) {
	dto, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, dto)
}

// List handles GET /api/v1/valuations with optional vin, status, and make
// filters.
func (h *ValuationHandler) List(c *gin.Context) {
	input := &appvaluation.ListInput{
		VIN:    c.Query("vin"),
		Status: c.Query("status"),
		Make:   c.Query("make"),
		Page:   parsePagination(c),
	}

	page, err := h.service.List(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, page)
}

// ingestRequest is the body of POST /valuations/:id/listings.
type ingestRequest struct {
	Listings []domain.RawListing `json:"listings"`
}

// ingestResponse reports how many listings survived normalization.
type ingestResponse struct {
	ValuationID string `json:"valuation_id"`
	Accepted    int    `json:"accepted"`
	Submitted   int    `json:"submitted"`
}

// IngestListings handles POST /api/v1/valuations/:id/listings.  Raw
// listings are normalized and attached to the valuation; rejects are
// counted but not stored.
func (h *ValuationHandler) IngestListings(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body"))
		return
	}
	if len(req.Listings) == 0 {
		respondError(c, errors.InvalidParam("listings must not be empty"))
		return
	}

	id := c.Param("id")
	accepted, err := h.service.IngestListings(c.Request.Context(), id, req.Listings)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, ingestResponse{
		ValuationID: id,
		Accepted:    accepted,
		Submitted:   len(req.Listings),
	})
}
