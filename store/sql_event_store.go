package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"climatedash/api/models"
)

// SQLEventStore persists tracking events in SQLite or PostgreSQL.
type SQLEventStore struct {
	db *sqlx.DB
}

var _ EventStore = (*SQLEventStore)(nil)

func NewSQLEventStore(db *sqlx.DB) *SQLEventStore {
	return &SQLEventStore{db: db}
}

type sessionRow struct {
	SessionID  string        `db:"session_id"`
	UserAgent  string        `db:"user_agent"`
	IPAddress  string        `db:"ip_address"`
	Referrer   string        `db:"referrer"`
	DeviceType string        `db:"device_type"`
	Browser    string        `db:"browser"`
	OS         string        `db:"os"`
	StartTime  int64         `db:"start_time"`
	EndTime    sql.NullInt64 `db:"end_time"`
}

func (r sessionRow) toModel() models.Session {
	s := models.Session{
		SessionID:  r.SessionID,
		UserAgent:  r.UserAgent,
		IPAddress:  r.IPAddress,
		Referrer:   r.Referrer,
		DeviceType: models.DeviceClass(r.DeviceType),
		Browser:    r.Browser,
		OS:         r.OS,
		StartTime:  fromMicros(r.StartTime),
	}
	if r.EndTime.Valid {
		end := fromMicros(r.EndTime.Int64)
		s.EndTime = &end
	}
	return s
}

type pageViewRow struct {
	ID          int64   `db:"id"`
	SessionID   string  `db:"session_id"`
	PageURL     string  `db:"page_url"`
	TimeSpent   float64 `db:"time_spent"`
	ScrollDepth float64 `db:"scroll_depth"`
	ViewTime    int64   `db:"view_time"`
}

func (r pageViewRow) toModel() models.PageView {
	return models.PageView{
		ID:          r.ID,
		SessionID:   r.SessionID,
		PageURL:     r.PageURL,
		TimeSpent:   r.TimeSpent,
		ScrollDepth: r.ScrollDepth,
		ViewTime:    fromMicros(r.ViewTime),
	}
}

type interactionRow struct {
	ID              int64           `db:"id"`
	SessionID       string          `db:"session_id"`
	InteractionType string          `db:"interaction_type"`
	ElementID       string          `db:"element_id"`
	ElementType     string          `db:"element_type"`
	TimeSpent       sql.NullFloat64 `db:"time_spent"`
	InteractionTime int64           `db:"interaction_time"`
}

func (r interactionRow) toModel() models.Interaction {
	in := models.Interaction{
		ID:              r.ID,
		SessionID:       r.SessionID,
		InteractionType: r.InteractionType,
		ElementID:       r.ElementID,
		ElementType:     r.ElementType,
		InteractionTime: fromMicros(r.InteractionTime),
	}
	if r.TimeSpent.Valid {
		v := r.TimeSpent.Float64
		in.TimeSpent = &v
	}
	return in
}

type metricRow struct {
	ID          int64   `db:"id"`
	SessionID   string  `db:"session_id"`
	MetricName  string  `db:"metric_name"`
	MetricValue float64 `db:"metric_value"`
	RecordedAt  int64   `db:"recorded_at"`
}

func (r metricRow) toModel() models.Metric {
	return models.Metric{
		ID:          r.ID,
		SessionID:   r.SessionID,
		MetricName:  r.MetricName,
		MetricValue: r.MetricValue,
		RecordedAt:  fromMicros(r.RecordedAt),
	}
}

const (
	sessionColumns     = `session_id, user_agent, ip_address, referrer, device_type, browser, os, start_time, end_time`
	pageViewColumns    = `id, session_id, page_url, time_spent, scroll_depth, view_time`
	interactionColumns = `id, session_id, interaction_type, element_id, element_type, time_spent, interaction_time`
	metricColumns      = `id, session_id, metric_name, metric_value, recorded_at`
)

func (s *SQLEventStore) CreateSession(ctx context.Context, sess *models.Session) error {
	query := s.db.Rebind(`
		INSERT INTO user_sessions
		(session_id, user_agent, ip_address, referrer, device_type, browser, os, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		sess.SessionID, sess.UserAgent, sess.IPAddress, sess.Referrer,
		string(sess.DeviceType), sess.Browser, sess.OS, toMicros(sess.StartTime))
	if err != nil {
		return &models.StorageError{Op: "create session", Err: err}
	}
	return nil
}

func (s *SQLEventStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	// end_time never precedes start_time even if the clock stepped back.
	query := s.db.Rebind(`
		UPDATE user_sessions
		SET end_time = CASE WHEN start_time > ? THEN start_time ELSE ? END
		WHERE session_id = ? AND end_time IS NULL`)

	ts := toMicros(endedAt)
	result, err := s.db.ExecContext(ctx, query, ts, ts, sessionID)
	if err != nil {
		return false, &models.StorageError{Op: "end session", Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, &models.StorageError{Op: "end session", Err: err}
	}
	if rows > 0 {
		return true, nil
	}

	exists, err := s.SessionExists(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, &models.NotFoundError{Resource: "session", ID: sessionID}
	}
	return false, nil
}

func (s *SQLEventStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	query := s.db.Rebind(`SELECT COUNT(*) FROM user_sessions WHERE session_id = ?`)
	if err := s.db.GetContext(ctx, &n, query, sessionID); err != nil {
		return false, &models.StorageError{Op: "look up session", Err: err}
	}
	return n > 0, nil
}

func (s *SQLEventStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var row sessionRow
	query := s.db.Rebind(`SELECT ` + sessionColumns + ` FROM user_sessions WHERE session_id = ?`)

	err := s.db.GetContext(ctx, &row, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get session", Err: err}
	}

	sess := row.toModel()
	return &sess, nil
}

func (s *SQLEventStore) InsertPageView(ctx context.Context, pv *models.PageView) error {
	query := s.db.Rebind(`
		INSERT INTO page_views (session_id, page_url, time_spent, scroll_depth, view_time)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)

	err := s.db.QueryRowxContext(ctx, query,
		pv.SessionID, pv.PageURL, pv.TimeSpent, pv.ScrollDepth, toMicros(pv.ViewTime)).Scan(&pv.ID)
	if err != nil {
		return &models.StorageError{Op: "record page view", Err: err}
	}
	return nil
}

func (s *SQLEventStore) InsertInteraction(ctx context.Context, in *models.Interaction) error {
	query := s.db.Rebind(`
		INSERT INTO user_interactions
		(session_id, interaction_type, element_id, element_type, time_spent, interaction_time)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)

	var timeSpent sql.NullFloat64
	if in.TimeSpent != nil {
		timeSpent = sql.NullFloat64{Float64: *in.TimeSpent, Valid: true}
	}

	err := s.db.QueryRowxContext(ctx, query,
		in.SessionID, in.InteractionType, in.ElementID, in.ElementType,
		timeSpent, toMicros(in.InteractionTime)).Scan(&in.ID)
	if err != nil {
		return &models.StorageError{Op: "record interaction", Err: err}
	}
	return nil
}

func (s *SQLEventStore) InsertMetric(ctx context.Context, m *models.Metric) error {
	query := s.db.Rebind(`
		INSERT INTO user_metrics (session_id, metric_name, metric_value, recorded_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)

	err := s.db.QueryRowxContext(ctx, query,
		m.SessionID, m.MetricName, m.MetricValue, toMicros(m.RecordedAt)).Scan(&m.ID)
	if err != nil {
		return &models.StorageError{Op: "record metric", Err: err}
	}
	return nil
}

func (s *SQLEventStore) EndedSessions(ctx context.Context, since *time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE end_time IS NOT NULL`
	var args []interface{}
	if since != nil {
		query += ` AND start_time >= ?`
		args = append(args, toMicros(*since))
	}
	query += ` ORDER BY start_time, session_id`

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, &models.StorageError{Op: "query ended sessions", Err: err}
	}

	sessions := make([]models.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toModel())
	}
	return sessions, nil
}

func (s *SQLEventStore) PageViews(ctx context.Context) ([]models.PageView, error) {
	return s.selectPageViews(ctx, `SELECT `+pageViewColumns+` FROM page_views ORDER BY id`)
}

func (s *SQLEventStore) SessionPageViews(ctx context.Context, sessionID string) ([]models.PageView, error) {
	return s.selectPageViews(ctx,
		`SELECT `+pageViewColumns+` FROM page_views WHERE session_id = ? ORDER BY view_time, id`, sessionID)
}

func (s *SQLEventStore) selectPageViews(ctx context.Context, query string, args ...interface{}) ([]models.PageView, error) {
	var rows []pageViewRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, &models.StorageError{Op: "query page views", Err: err}
	}

	views := make([]models.PageView, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.toModel())
	}
	return views, nil
}

func (s *SQLEventStore) Interactions(ctx context.Context) ([]models.Interaction, error) {
	return s.selectInteractions(ctx,
		`SELECT `+interactionColumns+` FROM user_interactions ORDER BY session_id, interaction_time, id`)
}

func (s *SQLEventStore) SessionInteractions(ctx context.Context, sessionID string) ([]models.Interaction, error) {
	return s.selectInteractions(ctx,
		`SELECT `+interactionColumns+` FROM user_interactions WHERE session_id = ? ORDER BY interaction_time, id`, sessionID)
}

func (s *SQLEventStore) selectInteractions(ctx context.Context, query string, args ...interface{}) ([]models.Interaction, error) {
	var rows []interactionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, &models.StorageError{Op: "query interactions", Err: err}
	}

	interactions := make([]models.Interaction, 0, len(rows))
	for _, r := range rows {
		interactions = append(interactions, r.toModel())
	}
	return interactions, nil
}

func (s *SQLEventStore) SessionMetrics(ctx context.Context, sessionID string) ([]models.Metric, error) {
	query := s.db.Rebind(`SELECT ` + metricColumns + ` FROM user_metrics WHERE session_id = ? ORDER BY recorded_at, id`)

	var rows []metricRow
	if err := s.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, &models.StorageError{Op: "query metrics", Err: err}
	}

	metrics := make([]models.Metric, 0, len(rows))
	for _, r := range rows {
		metrics = append(metrics, r.toModel())
	}
	return metrics, nil
}
