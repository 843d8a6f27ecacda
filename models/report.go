package models

import "time"

// AggregateReport is the cross-session summary computed on demand. Every
// field is nil when there is no underlying data.
type AggregateReport struct {
	AvgSessionDuration *float64           `json:"avg_session_duration"`
	BounceRate         *float64           `json:"bounce_rate"`
	AvgTimePerPage     *float64           `json:"avg_time_per_page"`
	TopInteractions    []InteractionCount `json:"top_interactions"`
	TabMetrics         []TabMetric        `json:"tab_metrics"`
	TabSequences       []TabTransition    `json:"tab_sequences"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

type InteractionCount struct {
	InteractionType string `json:"interaction_type"`
	Count           int    `json:"count"`
}

type TabMetric struct {
	TabName        string   `json:"tab_name"`
	VisitCount     int      `json:"visit_count"`
	AvgTimeSpent   *float64 `json:"avg_time_spent"`
	UniqueVisitors int      `json:"unique_visitors"`
}

type TabTransition struct {
	PreviousTab     string `json:"previous_tab"`
	CurrentTab      string `json:"current_tab"`
	TransitionCount int    `json:"transition_count"`
}

// SessionDetail is every event recorded for a single session.
type SessionDetail struct {
	Session      *Session      `json:"session"`
	PageViews    []PageView    `json:"page_views"`
	Interactions []Interaction `json:"interactions"`
	Metrics      []Metric      `json:"metrics"`
}
