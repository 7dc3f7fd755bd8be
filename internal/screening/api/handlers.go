package api

import (
	"net/http"
	"time"

	commonerrors "github.com/Aidin1998/watchlist_screening/common/errors"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/service"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/Aidin1998/watchlist_screening/internal/screening/watchlist"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers serves the screening HTTP API
type Handlers struct {
	service   *service.Service
	watchlist *watchlist.Manager
	errors    *commonerrors.Handler
	logger    *zap.SugaredLogger
}

// NewHandlers creates the HTTP handlers
func NewHandlers(svc *service.Service, wl *watchlist.Manager, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{
		service:   svc,
		watchlist: wl,
		errors:    commonerrors.NewHandler(classify),
		logger:    logger,
	}
}

// RegisterRoutes mounts the API under router
func (h *Handlers) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/screenings", h.SubmitScreening)
		v1.GET("/screenings/:id", h.GetScreening)
		v1.GET("/screenings/:id/result", h.GetResult)
		v1.POST("/matches/:id/review", h.ReviewMatch)
		v1.GET("/analytics", h.GetAnalytics)
		v1.GET("/analytics/trend", h.GetTrend)
		v1.GET("/export", h.Export)
	}

	if h.watchlist != nil {
		wl := v1.Group("/watchlist/entities")
		{
			wl.POST("", h.AddEntity)
			wl.GET("", h.ListEntities)
			wl.GET("/:id", h.GetEntity)
			wl.PATCH("/:id", h.UpdateEntity)
			wl.DELETE("/:id", h.DeleteEntity)
		}
	}
}

// ReviewRequest is the body of a match review
type ReviewRequest struct {
	ReviewerID string                `json:"reviewer_id"`
	Decision   models.ReviewDecision `json:"decision"`
	Notes      string                `json:"notes"`
}

// EntityUpdateRequest toggles an entity's active flag
type EntityUpdateRequest struct {
	IsActive *bool `json:"is_active"`
}

// SubmitScreening handles POST /api/v1/screenings
func (h *Handlers) SubmitScreening(c *gin.Context) {
	var input service.SubmitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.errors.Write(c, commonerrors.NewValidationError(err.Error(), c.Request.URL.Path))
		return
	}

	request, err := h.service.SubmitScreening(c.Request.Context(), input)
	if err != nil {
		if request != nil {
			h.logger.Errorw("Screening request not queued", "request_id", request.ID, "error", err)
			h.errors.Write(c, commonerrors.NewUnavailableError(err.Error(), c.Request.URL.Path))
			return
		}
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, request)
}

// GetScreening handles GET /api/v1/screenings/:id
func (h *Handlers) GetScreening(c *gin.Context) {
	request, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// GetResult handles GET /api/v1/screenings/:id/result
func (h *Handlers) GetResult(c *gin.Context) {
	ctx := c.Request.Context()
	request, err := h.service.GetRequest(ctx, c.Param("id"))
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	if !request.Status.IsTerminal() {
		c.JSON(http.StatusAccepted, gin.H{"request_id": request.ID, "status": request.Status})
		return
	}

	result, err := h.service.GetResult(ctx, request.ID)
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ReviewMatch handles POST /api/v1/matches/:id/review
func (h *Handlers) ReviewMatch(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.Write(c, commonerrors.NewValidationError(err.Error(), c.Request.URL.Path))
		return
	}

	match, err := h.service.RecordReview(c.Request.Context(), c.Param("id"), req.ReviewerID, req.Decision, req.Notes)
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

// GetAnalytics handles GET /api/v1/analytics
func (h *Handlers) GetAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.GetAnalytics())
}

// GetTrend handles GET /api/v1/analytics/trend?from=YYYY-MM-DD&to=YYYY-MM-DD.
// The range defaults to the last seven days.
func (h *Handlers) GetTrend(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -6)

	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			h.errors.Write(c, commonerrors.NewValidationError("from must be YYYY-MM-DD", c.Request.URL.Path))
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			h.errors.Write(c, commonerrors.NewValidationError("to must be YYYY-MM-DD", c.Request.URL.Path))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"daily": h.service.GetTrend(from, to)})
}

// Export handles GET /api/v1/export?format=json|csv
func (h *Handlers) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.FormatJSON)
	switch format {
	case service.FormatCSV:
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="screening-results.csv"`)
	case service.FormatJSON:
		c.Header("Content-Type", "application/json")
	default:
		h.errors.HandleError(c, service.ErrUnsupportedFormat)
		return
	}

	c.Status(http.StatusOK)
	if err := h.service.ExportResults(c.Request.Context(), format, c.Writer); err != nil {
		h.logger.Errorw("Export failed", "format", format, "error", err)
		_ = c.Error(err)
	}
}

// AddEntity handles POST /api/v1/watchlist/entities
func (h *Handlers) AddEntity(c *gin.Context) {
	var entity models.WatchlistEntity
	if err := c.ShouldBindJSON(&entity); err != nil {
		h.errors.Write(c, commonerrors.NewValidationError(err.Error(), c.Request.URL.Path))
		return
	}

	added, err := h.watchlist.AddEntity(c.Request.Context(), &entity)
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

// ListEntities handles GET /api/v1/watchlist/entities?provider=&list_type=&active=
func (h *Handlers) ListEntities(c *gin.Context) {
	filter := storage.EntityFilter{
		SourceProvider: c.Query("provider"),
		ActiveOnly:     c.Query("active") == "true",
	}
	for _, lt := range c.QueryArray("list_type") {
		filter.ListTypes = append(filter.ListTypes, models.ListType(lt))
	}

	entities, err := h.watchlist.ListEntities(c.Request.Context(), filter)
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities, "total": len(entities)})
}

// GetEntity handles GET /api/v1/watchlist/entities/:id
func (h *Handlers) GetEntity(c *gin.Context) {
	entity, err := h.watchlist.GetEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// UpdateEntity handles PATCH /api/v1/watchlist/entities/:id
func (h *Handlers) UpdateEntity(c *gin.Context) {
	var req EntityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		h.errors.Write(c, commonerrors.NewValidationError("is_active is required", c.Request.URL.Path))
		return
	}

	entity, err := h.watchlist.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// DeleteEntity handles DELETE /api/v1/watchlist/entities/:id
func (h *Handlers) DeleteEntity(c *gin.Context) {
	if err := h.watchlist.DeleteEntity(c.Request.Context(), c.Param("id")); err != nil {
		h.errors.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
