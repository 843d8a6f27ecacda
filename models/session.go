package models

import "time"

// DeviceClass is the coarse device category derived from a user-agent string.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
)

// InteractionTabSwitch is the interaction type that drives tab analytics.
// For these interactions ElementID names the tab navigated to.
const InteractionTabSwitch = "tab_switch"

// Session is one continuous visit by a client.
type Session struct {
	SessionID  string      `json:"session_id"`
	UserAgent  string      `json:"user_agent"`
	IPAddress  string      `json:"ip_address"`
	Referrer   string      `json:"referrer"`
	DeviceType DeviceClass `json:"device_type"`
	Browser    string      `json:"browser"`
	OS         string      `json:"os"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    *time.Time  `json:"end_time"`
}

// Duration returns the session length in seconds. ok is false while the
// session has not been ended.
func (s *Session) Duration() (seconds float64, ok bool) {
	if s.EndTime == nil {
		return 0, false
	}
	return s.EndTime.Sub(s.StartTime).Seconds(), true
}

type PageView struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	PageURL     string    `json:"page_url"`
	TimeSpent   float64   `json:"time_spent"`
	ScrollDepth float64   `json:"scroll_depth"`
	ViewTime    time.Time `json:"view_time"`
}

// Interaction is a single UI interaction. ID is assigned by the store and
// increases monotonically, so it orders interactions recorded within the
// same clock tick.
type Interaction struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	InteractionType string    `json:"interaction_type"`
	ElementID       string    `json:"element_id"`
	ElementType     string    `json:"element_type"`
	TimeSpent       *float64  `json:"time_spent,omitempty"`
	InteractionTime time.Time `json:"interaction_time"`
}

type Metric struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	MetricName  string    `json:"metric_name"`
	MetricValue float64   `json:"metric_value"`
	RecordedAt  time.Time `json:"recorded_at"`
}
