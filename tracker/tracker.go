// Package tracker records visitor sessions and their page views,
// interactions and custom metrics.
package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"climatedash/api/models"
	"climatedash/api/utils"
)

// Store is the subset of the event store the tracker writes through.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	InsertPageView(ctx context.Context, pv *models.PageView) error
	InsertInteraction(ctx context.Context, in *models.Interaction) error
	InsertMetric(ctx context.Context, m *models.Metric) error
}

// Publisher receives a copy of every successfully recorded event.
type Publisher interface {
	Publish(event models.TrackingEvent)
}

// Options configures a Tracker. Zero values fall back to the wall clock, fresh
// metrics and the default logger.
type Options struct {
	// StrictSessions rejects events for sessions that were never started.
	StrictSessions bool
	Now            func() time.Time
	Publisher      Publisher
	Metrics        *Metrics
	Logger         *slog.Logger
}

// Tracker validates tracking input and appends it to the event store.
type Tracker struct {
	store     Store
	strict    bool
	now       func() time.Time
	publisher Publisher
	metrics   *Metrics
	logger    *slog.Logger
}

// New returns a Tracker writing through store.
func New(store Store, opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		store:     store,
		strict:    opts.StrictSessions,
		now:       opts.Now,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

type StartSessionInput struct {
	UserAgent     string
	ClientAddress string
	Referrer      string
}

type PageViewInput struct {
	URL         string
	TimeSpent   float64
	ScrollDepth float64
}

type InteractionInput struct {
	Type        string
	ElementID   string
	ElementType string
	// TimeSpent is optional; tab analytics average it when present.
	TimeSpent *float64
}

// StartSession classifies the visitor, persists a new open session and
// returns its identifier.
func (t *Tracker) StartSession(ctx context.Context, in StartSessionInput) (string, error) {
	now := t.now().UTC()
	class := utils.ClassifyUserAgent(in.UserAgent)

	sess := &models.Session{
		SessionID:  utils.GenerateSessionID(in.UserAgent, in.ClientAddress, now),
		UserAgent:  in.UserAgent,
		IPAddress:  in.ClientAddress,
		Referrer:   in.Referrer,
		DeviceType: class.Device,
		Browser:    class.Browser,
		OS:         class.OS,
		StartTime:  now,
	}

	if err := t.store.CreateSession(ctx, sess); err != nil {
		t.reject(err)
		return "", err
	}

	t.metrics.IncSessionsStarted(string(sess.DeviceType))
	t.logger.Info("session started",
		"session_id", sess.SessionID,
		"device_type", sess.DeviceType,
		"browser", sess.Browser,
		"os", sess.OS,
	)
	t.publish(models.TrackingEvent{
		EventType: models.EventSessionStart,
		SessionID: sess.SessionID,
		Timestamp: now,
		Referrer:  sess.Referrer,
		UserAgent: sess.UserAgent,
		IPAddress: sess.IPAddress,
		EventData: t.eventData(map[string]string{
			"device_type": string(sess.DeviceType),
			"browser":     sess.Browser,
			"os":          sess.OS,
		}),
	})
	return sess.SessionID, nil
}

// EndSession stamps the session's end time. Ending an already ended session
// is a no-op that keeps the first end time.
func (t *Tracker) EndSession(ctx context.Context, sessionID string) error {
	if err := requireSessionID(sessionID); err != nil {
		t.reject(err)
		return err
	}

	now := t.now().UTC()
	ended, err := t.store.EndSession(ctx, sessionID, now)
	if err != nil {
		t.reject(err)
		return err
	}
	if !ended {
		t.logger.Debug("session already ended", "session_id", sessionID)
		return nil
	}

	t.metrics.IncSessionsEnded()
	t.logger.Info("session ended", "session_id", sessionID)
	t.publish(models.TrackingEvent{
		EventType: models.EventSessionEnd,
		SessionID: sessionID,
		Timestamp: now,
	})
	return nil
}

// EndSessionWithPageView records the final page view of a visit and then
// ends the session. Nothing is written for an unknown or already ended
// session.
func (t *Tracker) EndSessionWithPageView(ctx context.Context, sessionID string, pv PageViewInput) error {
	if err := requireSessionID(sessionID); err != nil {
		t.reject(err)
		return err
	}
	if err := validatePageView(pv); err != nil {
		t.reject(err)
		return err
	}
	sess, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		t.reject(err)
		return err
	}
	if sess.EndTime != nil {
		t.logger.Debug("session already ended, final page view skipped", "session_id", sessionID)
		return nil
	}
	if err := t.insertPageView(ctx, sessionID, pv); err != nil {
		return err
	}
	return t.EndSession(ctx, sessionID)
}

// RecordPageView appends a page view to the session.
func (t *Tracker) RecordPageView(ctx context.Context, sessionID string, pv PageViewInput) error {
	if err := requireSessionID(sessionID); err != nil {
		t.reject(err)
		return err
	}
	if err := validatePageView(pv); err != nil {
		t.reject(err)
		return err
	}
	if err := t.ensureSession(ctx, sessionID, t.strict); err != nil {
		return err
	}
	return t.insertPageView(ctx, sessionID, pv)
}

func (t *Tracker) insertPageView(ctx context.Context, sessionID string, in PageViewInput) error {
	pv := &models.PageView{
		SessionID:   sessionID,
		PageURL:     in.URL,
		TimeSpent:   in.TimeSpent,
		ScrollDepth: in.ScrollDepth,
		ViewTime:    t.now().UTC(),
	}
	if err := t.store.InsertPageView(ctx, pv); err != nil {
		t.reject(err)
		return err
	}

	t.metrics.IncEvents(models.EventPageView)
	t.logger.Debug("page view recorded", "session_id", sessionID, "url", pv.PageURL)
	t.publish(models.TrackingEvent{
		EventType:  models.EventPageView,
		SessionID:  sessionID,
		Timestamp:  pv.ViewTime,
		PagePath:   pv.PageURL,
		DurationMs: int64(pv.TimeSpent * 1000),
		EventData:  t.eventData(map[string]float64{"scroll_depth": pv.ScrollDepth}),
	})
	return nil
}

// RecordInteraction appends a user interaction to the session.
func (t *Tracker) RecordInteraction(ctx context.Context, sessionID string, in InteractionInput) error {
	if err := requireSessionID(sessionID); err != nil {
		t.reject(err)
		return err
	}
	if in.TimeSpent != nil && (*in.TimeSpent < 0 || !isFinite(*in.TimeSpent)) {
		err := &models.ValidationError{Field: "time_spent", Reason: "must be a non-negative number"}
		t.reject(err)
		return err
	}
	if err := t.ensureSession(ctx, sessionID, t.strict); err != nil {
		return err
	}

	interaction := &models.Interaction{
		SessionID:       sessionID,
		InteractionType: in.Type,
		ElementID:       in.ElementID,
		ElementType:     in.ElementType,
		TimeSpent:       in.TimeSpent,
		InteractionTime: t.now().UTC(),
	}
	if err := t.store.InsertInteraction(ctx, interaction); err != nil {
		t.reject(err)
		return err
	}

	t.metrics.IncEvents(models.EventInteraction)
	t.logger.Debug("interaction recorded",
		"session_id", sessionID,
		"type", interaction.InteractionType,
		"element_id", interaction.ElementID,
	)

	var durationMs int64
	if in.TimeSpent != nil {
		durationMs = int64(*in.TimeSpent * 1000)
	}
	t.publish(models.TrackingEvent{
		EventType:  models.EventInteraction,
		SessionID:  sessionID,
		Timestamp:  interaction.InteractionTime,
		DurationMs: durationMs,
		EventData: t.eventData(map[string]string{
			"interaction_type": interaction.InteractionType,
			"element_id":       interaction.ElementID,
			"element_type":     interaction.ElementType,
		}),
	})
	return nil
}

// RecordMetric appends a named numeric value to the session. Both the name
// and the value are required.
func (t *Tracker) RecordMetric(ctx context.Context, sessionID, name string, value *float64) error {
	if err := requireSessionID(sessionID); err != nil {
		t.reject(err)
		return err
	}
	if strings.TrimSpace(name) == "" {
		err := &models.ValidationError{Field: "metric_name", Reason: "is required"}
		t.reject(err)
		return err
	}
	if value == nil {
		err := &models.ValidationError{Field: "metric_value", Reason: "is required"}
		t.reject(err)
		return err
	}
	if !isFinite(*value) {
		err := &models.ValidationError{Field: "metric_value", Reason: "must be a finite number"}
		t.reject(err)
		return err
	}
	if err := t.ensureSession(ctx, sessionID, t.strict); err != nil {
		return err
	}

	m := &models.Metric{
		SessionID:   sessionID,
		MetricName:  name,
		MetricValue: *value,
		RecordedAt:  t.now().UTC(),
	}
	if err := t.store.InsertMetric(ctx, m); err != nil {
		t.reject(err)
		return err
	}

	t.metrics.IncEvents(models.EventMetric)
	t.logger.Debug("metric recorded", "session_id", sessionID, "name", name, "value", *value)
	t.publish(models.TrackingEvent{
		EventType: models.EventMetric,
		SessionID: sessionID,
		Timestamp: m.RecordedAt,
		EventData: t.eventData(map[string]interface{}{
			"metric_name":  m.MetricName,
			"metric_value": m.MetricValue,
		}),
	})
	return nil
}

func (t *Tracker) ensureSession(ctx context.Context, sessionID string, required bool) error {
	if !required {
		return nil
	}
	exists, err := t.store.SessionExists(ctx, sessionID)
	if err != nil {
		t.reject(err)
		return err
	}
	if !exists {
		err := &models.NotFoundError{Resource: "session", ID: sessionID}
		t.reject(err)
		return err
	}
	return nil
}

func (t *Tracker) reject(err error) {
	switch {
	case models.IsValidation(err):
		t.metrics.IncRejections(reasonValidation)
	case models.IsNotFound(err):
		t.metrics.IncRejections(reasonNotFound)
	default:
		t.metrics.IncRejections(reasonStorage)
		t.logger.Error("tracking write failed", "error", err)
	}
}

func (t *Tracker) publish(event models.TrackingEvent) {
	if t.publisher == nil {
		return
	}
	event.EventID = uuid.New().String()
	t.publisher.Publish(event)
}

func requireSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &models.ValidationError{Field: "session_id", Reason: "is required"}
	}
	return nil
}

func validatePageView(pv PageViewInput) error {
	if pv.TimeSpent < 0 || !isFinite(pv.TimeSpent) {
		return &models.ValidationError{Field: "time_spent", Reason: "must be a non-negative number"}
	}
	if !isFinite(pv.ScrollDepth) {
		return &models.ValidationError{Field: "scroll_depth", Reason: "must be a finite number"}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// eventData encodes the mirror payload. An encoding failure drops the
// payload, not the event.
func (t *Tracker) eventData(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		t.logger.Warn("failed to encode event data", "error", err)
		return nil
	}
	return b
}
