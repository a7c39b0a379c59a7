package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/storage"
)

// SaveResetToken stores a new password reset token
func (s *Storage) SaveResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (token_hash, user_id, valid_until, created_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		token.TokenHash,
		token.UserID,
		token.ValidUntil.UTC(),
		token.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get reset token id: %w", err)
	}
	token.ID = id

	return nil
}

// GetResetToken retrieves a reset token by digest
func (s *Storage) GetResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, token_hash, user_id, valid_until, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = ?
	`

	token := &models.PasswordResetToken{}
	var usedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.TokenHash,
		&token.UserID,
		&token.ValidUntil,
		&usedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrResetTokenNotFound
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}

	if usedAt.Valid {
		t := usedAt.Time
		token.UsedAt = &t
	}

	return token, nil
}

// ConsumeResetToken marks the token used and sets the owner's password in one transaction
func (s *Storage) ConsumeResetToken(ctx context.Context, id int64, passwordHash string, usedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var userID int64
	var used sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT user_id, used_at FROM password_reset_tokens WHERE id = ?`, id).Scan(&userID, &used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrResetTokenNotFound
		}
		return fmt.Errorf("failed to get reset token: %w", err)
	}
	if used.Valid {
		return storage.ErrResetTokenUsed
	}

	// условие на used_at повторяем: параллельный consume должен получить ErrResetTokenUsed
	query := `UPDATE password_reset_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`
	result, err := tx.ExecContext(ctx, query, usedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows != 1 {
		return storage.ErrResetTokenUsed
	}

	if err := updatePassword(ctx, tx, userID, passwordHash, usedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit password reset: %w", err)
	}

	return nil
}
