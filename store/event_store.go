package store

import (
	"context"
	"time"

	"climatedash/api/models"
)

// EventStore is the append-mostly log of visitor sessions and their events.
// Sessions are created once, updated once when they end and never deleted;
// page views, interactions and metrics are append-only.
type EventStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	// EndSession stamps the end time of an open session and reports whether
	// it did so. Ending an already ended session changes nothing. Unknown
	// sessions yield a *models.NotFoundError.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	InsertPageView(ctx context.Context, pv *models.PageView) error
	InsertInteraction(ctx context.Context, in *models.Interaction) error
	InsertMetric(ctx context.Context, m *models.Metric) error

	// EndedSessions returns sessions with an end time, optionally limited to
	// those started at or after since.
	EndedSessions(ctx context.Context, since *time.Time) ([]models.Session, error)
	PageViews(ctx context.Context) ([]models.PageView, error)
	// Interactions returns every interaction ordered by session, time and id.
	Interactions(ctx context.Context) ([]models.Interaction, error)

	SessionPageViews(ctx context.Context, sessionID string) ([]models.PageView, error)
	SessionInteractions(ctx context.Context, sessionID string) ([]models.Interaction, error)
	SessionMetrics(ctx context.Context, sessionID string) ([]models.Metric, error)
}

// Timestamps are persisted as UTC unix microseconds.
func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
