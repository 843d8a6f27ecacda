package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"climatedash/api/models"
)

// ErrOperatorExists is returned when an email is already registered.
var ErrOperatorExists = errors.New("operator already exists")

// OperatorStore persists dashboard operator accounts.
type OperatorStore struct {
	db *sqlx.DB
}

func NewOperatorStore(db *sqlx.DB) *OperatorStore {
	return &OperatorStore{db: db}
}

type operatorRow struct {
	ID             int64  `db:"id"`
	Email          string `db:"email"`
	HashedPassword string `db:"hashed_password"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
}

// CreateOperator inserts a new operator with an already hashed password.
func (s *OperatorStore) CreateOperator(ctx context.Context, email string, hashedPassword []byte) (*models.Operator, error) {
	now := time.Now().UTC()
	query := s.db.Rebind(`
		INSERT INTO operators (email, hashed_password, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)

	op := &models.Operator{
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.db.QueryRowxContext(ctx, query, email, string(hashedPassword), toMicros(now), toMicros(now)).Scan(&op.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrOperatorExists
		}
		return nil, &models.StorageError{Op: "create operator", Err: err}
	}

	slog.Info("operator created", "operator_id", op.ID, "email", op.Email)
	return op, nil
}

func (s *OperatorStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var row operatorRow
	query := s.db.Rebind(`
		SELECT id, email, hashed_password, created_at, updated_at
		FROM operators
		WHERE email = ?`)

	err := s.db.GetContext(ctx, &row, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "operator", ID: email}
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get operator by email", Err: err}
	}

	return &models.Operator{
		ID:             row.ID,
		Email:          row.Email,
		HashedPassword: []byte(row.HashedPassword),
		CreatedAt:      fromMicros(row.CreatedAt),
		UpdatedAt:      fromMicros(row.UpdatedAt),
	}, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
