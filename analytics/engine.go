// Package analytics computes cross-session statistics from the event store.
// Reports are recomputed from raw rows on every call.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"climatedash/api/models"
	"climatedash/api/telemetry"
)

// Source is the read side of the event store.
type Source interface {
	EndedSessions(ctx context.Context, since *time.Time) ([]models.Session, error)
	PageViews(ctx context.Context) ([]models.PageView, error)
	Interactions(ctx context.Context) ([]models.Interaction, error)

	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	SessionPageViews(ctx context.Context, sessionID string) ([]models.PageView, error)
	SessionInteractions(ctx context.Context, sessionID string) ([]models.Interaction, error)
	SessionMetrics(ctx context.Context, sessionID string) ([]models.Metric, error)
}

type Engine struct {
	source  Source
	now     func() time.Time
	metrics *Metrics
	logger  *slog.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:  source,
		now:     time.Now,
		metrics: NewMetrics(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetAggregateMetrics builds the aggregate report. since, when set, limits
// session duration to sessions started at or after it and time per page to
// views at or after it. Any store failure fails the whole report.
func (e *Engine) GetAggregateMetrics(ctx context.Context, since *time.Time) (report *models.AggregateReport, err error) {
	var attrs []attribute.KeyValue
	if since != nil {
		attrs = append(attrs, attribute.String("analytics.since", since.UTC().Format(time.RFC3339)))
	}
	ctx, end := telemetry.StartSpan(ctx, "analytics.aggregate", trace.WithAttributes(attrs...))
	defer e.observe(QueryAggregate, time.Now(), end, &err)

	sessions, err := e.source.EndedSessions(ctx, since)
	if err != nil {
		return nil, err
	}
	views, err := e.source.PageViews(ctx)
	if err != nil {
		return nil, err
	}
	interactions, err := e.source.Interactions(ctx)
	if err != nil {
		return nil, err
	}

	tabs := tabSwitches(interactions)
	report = &models.AggregateReport{
		AvgSessionDuration: avgSessionDuration(sessions),
		BounceRate:         bounceRate(views),
		AvgTimePerPage:     avgTimePerPage(views, since),
		TopInteractions:    topInteractions(interactions, topInteractionsLimit),
		TabMetrics:         tabMetrics(tabs),
		TabSequences:       tabSequences(tabs, tabSequencesLimit),
		GeneratedAt:        e.now().UTC(),
	}

	e.logger.Debug("aggregate report computed",
		"ended_sessions", len(sessions),
		"page_views", len(views),
		"interactions", len(interactions),
	)
	return report, nil
}

// GetSessionDetail returns the session and every event recorded for it.
func (e *Engine) GetSessionDetail(ctx context.Context, sessionID string) (detail *models.SessionDetail, err error) {
	ctx, end := telemetry.StartSpan(ctx, "analytics.session_detail",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer e.observe(QuerySessionDetail, time.Now(), end, &err)

	if sessionID == "" {
		return nil, &models.ValidationError{Field: "session_id", Reason: "is required"}
	}

	sess, err := e.source.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	views, err := e.source.SessionPageViews(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	interactions, err := e.source.SessionInteractions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	metrics, err := e.source.SessionMetrics(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &models.SessionDetail{
		Session:      sess,
		PageViews:    views,
		Interactions: interactions,
		Metrics:      metrics,
	}, nil
}

func (e *Engine) observe(query string, started time.Time, end func(error), errp *error) {
	err := *errp
	end(err)
	e.metrics.ObserveQuery(query, time.Since(started).Seconds())
	if err != nil && !models.IsNotFound(err) && !models.IsValidation(err) {
		e.metrics.IncQueryErrors(query)
		e.logger.Error("analytics query failed", "query", query, "error", err)
	}
}
