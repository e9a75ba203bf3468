package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

func (s *Store) GetUsage(ctx context.Context, userID string) (Usage, error) {
	q := s.sql.Select("user_id", "summary_count", "account_tier", "enc_api_key", "last_reset").
		From("user_usage").
		Where(sq.Eq{"user_id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Usage{}, fmt.Errorf("build get usage query: %w", err)
	}

	var u Usage
	var encKey sql.NullString
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&u.UserID,
		&u.SummaryCount,
		&u.AccountTier,
		&encKey,
		&u.LastReset,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Usage{}, ErrNotFound
		}
		return Usage{}, fmt.Errorf("get usage: %w", err)
	}
	if encKey.Valid {
		u.EncAPIKey = &encKey.String
	}
	return u, nil
}

// IncrementUsage is a relative update so concurrent requests from the same
// user never lose a count.
func (s *Store) IncrementUsage(ctx context.Context, userID string) (Usage, error) {
	q := s.sql.Update("user_usage").
		Set("summary_count", sq.Expr("summary_count + 1")).
		Where(sq.Eq{"user_id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Usage{}, fmt.Errorf("build increment usage query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Usage{}, fmt.Errorf("increment usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return Usage{}, ErrNotFound
	}
	return s.GetUsage(ctx, userID)
}

func (s *Store) ResetAllFreeTierUsage(ctx context.Context) (int64, error) {
	q := s.sql.Update("user_usage").
		Set("summary_count", 0).
		Set("last_reset", nowExpr(s.driver)).
		Where(sq.Eq{"account_tier": "free"})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reset usage query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("reset free tier usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) SaveAPIKey(ctx context.Context, userID, encKey string) error {
	q := s.sql.Update("user_usage").
		Set("enc_api_key", encKey).
		Set("account_tier", "byok").
		Where(sq.Eq{"user_id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build save api key query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, userID string) error {
	q := s.sql.Update("user_usage").
		Set("enc_api_key", nil).
		Set("account_tier", "free").
		Where(sq.Eq{"user_id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete api key query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
