package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"climatedash/api/database"
)

func autoIncrementClause(driver string) string {
	if driver == database.DriverPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func schemaStatements(driver string) []string {
	id := autoIncrementClause(driver)
	return []string{
		`CREATE TABLE IF NOT EXISTS user_sessions (
			session_id TEXT PRIMARY KEY,
			user_agent TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			referrer TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL,
			browser TEXT NOT NULL,
			os TEXT NOT NULL,
			start_time BIGINT NOT NULL,
			end_time BIGINT
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_views (
			id %s,
			session_id TEXT NOT NULL,
			page_url TEXT NOT NULL DEFAULT '',
			time_spent DOUBLE PRECISION NOT NULL DEFAULT 0,
			scroll_depth DOUBLE PRECISION NOT NULL DEFAULT 0,
			view_time BIGINT NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_interactions (
			id %s,
			session_id TEXT NOT NULL,
			interaction_type TEXT NOT NULL DEFAULT '',
			element_id TEXT NOT NULL DEFAULT '',
			element_type TEXT NOT NULL DEFAULT '',
			time_spent DOUBLE PRECISION,
			interaction_time BIGINT NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_metrics (
			id %s,
			session_id TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			metric_value DOUBLE PRECISION NOT NULL,
			recorded_at BIGINT NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS operators (
			id %s,
			email TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_sessions_start ON user_sessions(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_page_views_session ON page_views(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_page_views_time ON page_views(view_time)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_session_time ON user_interactions(session_id, interaction_time, id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_type ON user_interactions(interaction_type)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_session ON user_metrics(session_id)`,
	}
}

// InitSchema creates the tracking and operator tables when they are missing.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements(db.DriverName()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
