package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ppe-monitor-service/internal/config"
	"ppe-monitor-service/internal/domain/ppe"
	"ppe-monitor-service/internal/service"
)

type Handler struct {
	svc    *service.Service
	config *config.Config
	log    zerolog.Logger
}

func NewHandler(svc *service.Service, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		config: cfg,
		log:    log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/detections", h.processDetection)
		public.GET("/violations/active", h.activeViolations)
		public.GET("/violations/stats", h.violationStats)
	}

	// Penalty reports require authentication
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/penalties/person/:id", h.personPenalty)
		protected.GET("/penalties/company/:id", h.companyPenalty)
	}
}

func (h *Handler) processDetection(c *gin.Context) {
	var payload ppe.DetectionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.svc.ProcessDetection(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "ok",
		"person_id": result.PersonID,
		"started":   result.Started,
		"resolved":  result.Resolved,
	})
}

func (h *Handler) activeViolations(c *gin.Context) {
	cameraID := strings.TrimSpace(c.Query("camera_id"))
	events := h.svc.ActiveViolations(cameraID)
	if events == nil {
		events = []ppe.ViolationEvent{}
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) violationStats(c *gin.Context) {
	cameraID := strings.TrimSpace(c.Query("camera_id"))

	windowHours := 24
	if w := c.Query("window_hours"); w != "" {
		if parsed, err := strconv.Atoi(w); err == nil && parsed > 0 {
			windowHours = parsed
		}
	}

	stats, err := h.svc.ViolationStats(c.Request.Context(), cameraID, windowHours)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(stats))
}

func (h *Handler) personPenalty(c *gin.Context) {
	month, err := parseMonth(c.Query("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	rec, err := h.svc.PersonPenalty(c.Request.Context(), c.Param("id"), month)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(rec))
}

func (h *Handler) companyPenalty(c *gin.Context) {
	month, err := parseMonth(c.Query("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	rec, err := h.svc.CompanyPenalty(c.Request.Context(), c.Param("id"), month)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(rec))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

// parseMonth accepts "2006-01"; empty defaults to the current month.
func parseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, errors.New("invalid month format, expected YYYY-MM")
	}
	return t, nil
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
