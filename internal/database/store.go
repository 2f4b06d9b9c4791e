package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/edgard/cropwise/internal/errors"
)

// MaxRecentLimit caps RecentRecommendations.
const MaxRecentLimit = 100

// Store defines the recommendation log operations.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveRecommendation inserts rec and sets its ID and CreatedAt.
	SaveRecommendation(ctx context.Context, rec *Recommendation) error

	// RecentRecommendations returns up to limit records, newest first.
	RecentRecommendations(ctx context.Context, limit int) ([]Recommendation, error)

	// PurgeRecommendations deletes records created before cutoff and
	// returns how many were removed.
	PurgeRecommendations(ctx context.Context, cutoff time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by db.
func NewStore(db *sqlx.DB, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &sqlxStore{
		db:     db,
		logger: logger.Named("store"),
		now:    time.Now,
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewStorageError("database ping failed", err)
	}

	return nil
}

func (s *sqlxStore) SaveRecommendation(ctx context.Context, rec *Recommendation) error {
	if rec == nil {
		return apperrors.NewStorageError("cannot save nil recommendation", nil)
	}
	if rec.Label == "" {
		return apperrors.NewStorageError("recommendation must have a label", nil)
	}

	rec.CreatedAt = s.now().UTC()

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO recommendations
			(session_id, surface, n, p, k, temperature, humidity, ph, rainfall, label, created_at)
		VALUES
			(:session_id, :surface, :n, :p, :k, :temperature, :humidity, :ph, :rainfall, :label, :created_at)`, rec)
	if err != nil {
		s.logger.Error("failed to insert recommendation", zap.String("session_id", rec.SessionID), zap.Error(err))
		return apperrors.NewStorageError("failed to insert recommendation", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.NewStorageError("failed to read recommendation id", err)
	}
	rec.ID = id

	s.logger.Debug("recommendation saved", zap.Int64("id", id), zap.String("label", rec.Label))

	return nil
}

func (s *sqlxStore) RecentRecommendations(ctx context.Context, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		return nil, apperrors.NewStorageError(fmt.Sprintf("invalid limit %d", limit), nil)
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	var recs []Recommendation
	err := s.db.SelectContext(ctx, &recs, `
		SELECT id, session_id, surface, n, p, k, temperature, humidity, ph, rainfall, label, created_at
		FROM recommendations
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query recommendations", err)
	}

	return recs, nil
}

func (s *sqlxStore) PurgeRecommendations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, apperrors.NewStorageError("failed to purge recommendations", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStorageError("failed to count purged recommendations", err)
	}

	return n, nil
}

// RunSQLMaintenance executes VACUUM. It must run outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Info("starting database maintenance (VACUUM)")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.Warn("VACUUM timed out or was cancelled", zap.Error(err))
		return apperrors.NewStorageError("database maintenance (VACUUM) timed out", err)
	case err != nil:
		s.logger.Error("VACUUM failed", zap.Error(err))
		return apperrors.NewStorageError("failed to execute VACUUM", err)
	}

	s.logger.Info("database maintenance (VACUUM) completed")

	return nil
}
