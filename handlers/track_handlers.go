package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"climatedash/api/analytics"
	"climatedash/api/models"
	"climatedash/api/tracker"
	"climatedash/api/utils"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 15 * time.Second
)

type TrackingHandlers struct {
	Tracker *tracker.Tracker
	Engine  *analytics.Engine
	Logger  *slog.Logger
}

func NewTrackingHandlers(t *tracker.Tracker, e *analytics.Engine, logger *slog.Logger) *TrackingHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackingHandlers{Tracker: t, Engine: e, Logger: logger}
}

func (h *TrackingHandlers) StartSession(c *gin.Context) {
	var req models.StartSessionRequest
	// An empty body is a session without a referrer.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	sessionID, err := h.Tracker.StartSession(ctx, tracker.StartSessionInput{
		UserAgent:     c.Request.UserAgent(),
		ClientAddress: c.ClientIP(),
		Referrer:      req.Referrer,
	})
	if err != nil {
		h.respondError(c, err, "Failed to start session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}

// EndSession records the final page view of the visit and closes the session.
// The page URL falls back to the Referer header.
func (h *TrackingHandlers) EndSession(c *gin.Context) {
	var req models.EndSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required", "details": err.Error()})
		return
	}
	if req.URL == "" {
		req.URL = c.Request.Referer()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	err := h.Tracker.EndSessionWithPageView(ctx, req.SessionID, tracker.PageViewInput{
		URL:         req.URL,
		TimeSpent:   req.TimeSpent,
		ScrollDepth: req.ScrollDepth,
	})
	if err != nil {
		h.respondError(c, err, "Failed to end session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *TrackingHandlers) RecordPageView(c *gin.Context) {
	var req models.PageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	err := h.Tracker.RecordPageView(ctx, req.SessionID, tracker.PageViewInput{
		URL:         req.URL,
		TimeSpent:   req.TimeSpent,
		ScrollDepth: req.ScrollDepth,
	})
	if err != nil {
		h.respondError(c, err, "Failed to record page view")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *TrackingHandlers) RecordInteraction(c *gin.Context) {
	var req models.InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	err := h.Tracker.RecordInteraction(ctx, req.SessionID, tracker.InteractionInput{
		Type:        req.Type,
		ElementID:   req.ElementID,
		ElementType: req.ElementType,
		TimeSpent:   req.TimeSpent,
	})
	if err != nil {
		h.respondError(c, err, "Failed to record interaction")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *TrackingHandlers) RecordMetric(c *gin.Context) {
	var req models.MetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), writeTimeout)
	defer cancel()

	if err := h.Tracker.RecordMetric(ctx, req.SessionID, req.MetricName, req.MetricValue); err != nil {
		h.respondError(c, err, "Failed to record metric")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// GetAggregateMetrics serves the aggregate report. start_date accepts
// RFC3339 or YYYY-MM-DD.
func (h *TrackingHandlers) GetAggregateMetrics(c *gin.Context) {
	since, err := utils.ParseSince(c.Query("start_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start_date' format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z) or YYYY-MM-DD"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	report, err := h.Engine.GetAggregateMetrics(ctx, since)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve analytics")
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *TrackingHandlers) GetSessionDetail(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	detail, err := h.Engine.GetSessionDetail(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to retrieve session")
		return
	}

	c.JSON(http.StatusOK, detail)
}

// respondError maps core errors onto HTTP statuses. Storage details are
// logged but never returned to the client.
func (h *TrackingHandlers) respondError(c *gin.Context, err error, message string) {
	var verr *models.ValidationError
	var nferr *models.NotFoundError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.As(err, &nferr):
		c.JSON(http.StatusNotFound, gin.H{"error": nferr.Error()})
	default:
		h.Logger.Error(message, "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
