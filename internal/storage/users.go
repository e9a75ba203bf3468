package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrEmailExists = errors.New("email already registered")
)

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, fmt.Errorf("email is empty")
	}

	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertUser := s.sql.Insert("users").
		Columns("id", "email", "password_hash").
		Values(id, email, passwordHash)
	sqlStr, args, err := insertUser.ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build user insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	insertUsage := s.sql.Insert("user_usage").
		Columns("user_id", "summary_count", "account_tier").
		Values(id, 0, "free")
	sqlStr, args, err = insertUsage.ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build usage insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return User{}, fmt.Errorf("insert usage row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, sq.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, sq.Eq{"id": id})
}

func (s *Store) GetUserByResetToken(ctx context.Context, token string) (User, error) {
	if strings.TrimSpace(token) == "" {
		return User{}, ErrNotFound
	}
	return s.getUser(ctx, sq.Eq{"reset_token": token})
}

func (s *Store) getUser(ctx context.Context, where sq.Sqlizer) (User, error) {
	q := s.sql.Select("id", "email", "password_hash", "reset_token", "reset_expires", "created_at").
		From("users").
		Where(where)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build user query: %w", err)
	}

	var u User
	var passwordHash, resetToken sql.NullString
	var resetExpires sql.NullTime
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&u.ID,
		&u.Email,
		&passwordHash,
		&resetToken,
		&resetExpires,
		&u.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	if resetToken.Valid {
		u.ResetToken = &resetToken.String
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		u.ResetExpires = &t
	}
	return u, nil
}

func (s *Store) SetPassword(ctx context.Context, userID, passwordHash string) error {
	q := s.sql.Update("users").
		Set("password_hash", passwordHash).
		Where(sq.Eq{"id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set password query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetResetToken(ctx context.Context, userID, token string, expires time.Time) error {
	q := s.sql.Update("users").
		Set("reset_token", token).
		Set("reset_expires", expires.UTC()).
		Where(sq.Eq{"id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set reset token query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ClearResetToken(ctx context.Context, userID string) error {
	q := s.sql.Update("users").
		Set("reset_token", nil).
		Set("reset_expires", nil).
		Where(sq.Eq{"id": userID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build clear reset token query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
