package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vinsight/vinsight/internal/application/reporting"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
)

// ReportHandler serves rendered valuation reports and their stored
// artifacts.
type ReportHandler struct {
	reports reporting.Service
	logger  logging.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports reporting.Service, log logging.Logger) *ReportHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ReportHandler{reports: reports, logger: log}
}

// RegisterRoutes mounts the report endpoints on the given group.
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rr := rg.Group("/valuations/:id/report")
	rr.GET("", h.Render)
	rr.POST("", h.Store)
	rr.GET("/download", h.Download)
}

func parseFormat(c *gin.Context) reporting.Format {
	return reporting.ParseFormat(c.DefaultQuery("format", string(reporting.FormatHTML)))
}

// Render handles GET /api/v1/valuations/:id/report?format=html|markdown|json.
// The document is returned inline with its native content type.
func (h *ReportHandler) Render(c *gin.Context) {
	doc, contentType, err := h.reports.Render(c.Request.Context(), c.Param("id"), parseFormat(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, doc)
}

// Store handles POST /api/v1/valuations/:id/report.  The report is
// rendered, uploaded to object storage, and returned with a presigned
// download link.
func (h *ReportHandler) Store(c *gin.Context) {
	stored, err := h.reports.RenderAndStore(c.Request.Context(), c.Param("id"), parseFormat(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, stored)
}

// Download handles GET /api/v1/valuations/:id/report/download.  It
// redirects to a presigned URL for the stored artifact.
func (h *ReportHandler) Download(c *gin.Context) {
	url, err := h.reports.DownloadURL(c.Request.Context(), c.Param("id"), parseFormat(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if url == "" {
		respondError(c, errors.New(errors.ErrCodeArtifactStoreFailed, "presigned URLs unavailable"))
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}
