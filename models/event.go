package models

import (
	"encoding/json"
	"time"
)

// Tracking event kinds as written to the analytics mirror.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventPageView     = "page_view"
	EventInteraction  = "interaction"
	EventMetric       = "metric"
)

// TrackingEvent is the flattened form of a tracking call mirrored to the
// columnar analytics store.
type TrackingEvent struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	SessionID  string          `json:"sessionId"`
	Timestamp  time.Time       `json:"timestamp"`
	PagePath   string          `json:"pagePath"`
	Referrer   string          `json:"referrer"`
	UserAgent  string          `json:"userAgent"`
	IPAddress  string          `json:"ipAddress"`
	DurationMs int64           `json:"durationMs"`
	EventData  json.RawMessage `json:"eventData,omitempty"`
}

type StartSessionRequest struct {
	Referrer string `json:"referrer"`
}

type EndSessionRequest struct {
	SessionID   string  `json:"session_id" binding:"required"`
	URL         string  `json:"url"`
	TimeSpent   float64 `json:"time_spent"`
	ScrollDepth float64 `json:"scroll_depth"`
}

type PageViewRequest struct {
	SessionID   string  `json:"session_id" binding:"required"`
	URL         string  `json:"url"`
	TimeSpent   float64 `json:"time_spent"`
	ScrollDepth float64 `json:"scroll_depth"`
}

type InteractionRequest struct {
	SessionID   string   `json:"session_id" binding:"required"`
	Type        string   `json:"type"`
	ElementID   string   `json:"element_id"`
	ElementType string   `json:"element_type"`
	TimeSpent   *float64 `json:"time_spent"`
}

type MetricRequest struct {
	SessionID   string   `json:"session_id" binding:"required"`
	MetricName  string   `json:"metric_name"`
	MetricValue *float64 `json:"metric_value"`
}
