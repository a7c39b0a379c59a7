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

type rowScanner interface {
	Scan(dest ...any) error
}

// SaveRefreshToken inserts the token or updates the record with the same identifier.
// Каждая запись коммитится сразу, поэтому flush здесь ничего не меняет.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken, flush bool) error {
	query := `
		INSERT INTO refresh_tokens (identifier, user_id, valid_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			valid_until = excluded.valid_until,
			updated_at  = excluded.updated_at
	`

	var validUntil sql.NullTime
	if token.ValidUntil != nil {
		validUntil = sql.NullTime{Time: token.ValidUntil.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		token.Identifier,
		token.UserID,
		validUntil,
		token.CreatedAt.UTC(),
		token.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	return nil
}

// FindRefreshToken retrieves refresh token by identifier
func (s *Storage) FindRefreshToken(ctx context.Context, identifier string) (*models.RefreshToken, error) {
	query := `
		SELECT identifier, user_id, valid_until, created_at, updated_at
		FROM refresh_tokens
		WHERE identifier = ?
	`

	token, err := scanRefreshToken(s.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

// GetUserTokens retrieves all refresh tokens for a user
func (s *Storage) GetUserTokens(ctx context.Context, userID int64) ([]*models.RefreshToken, error) {
	query := `
		SELECT identifier, user_id, valid_until, created_at, updated_at
		FROM refresh_tokens
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user tokens: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tokens []*models.RefreshToken

	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tokens, nil
}

// RevokeUserTokens revokes every still valid refresh token of a user
func (s *Storage) RevokeUserTokens(ctx context.Context, userID int64, at time.Time) (int, error) {
	tokens, err := s.GetUserTokens(ctx, userID)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE refresh_tokens SET valid_until = ?, updated_at = ? WHERE identifier = ?`

	revoked := 0
	for _, token := range tokens {
		// Сравнение делаем в Go: даты в SQLite хранятся строками
		if !token.IsValid(at) {
			continue
		}
		token.Revoke(at)
		if _, err := tx.ExecContext(ctx, query, token.ValidUntil.UTC(), token.UpdatedAt.UTC(), token.Identifier); err != nil {
			return 0, fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		revoked++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit revocation: %w", err)
	}

	return revoked, nil
}

func scanRefreshToken(row rowScanner) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	var validUntil sql.NullTime

	if err := row.Scan(
		&token.Identifier,
		&token.UserID,
		&validUntil,
		&token.CreatedAt,
		&token.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if validUntil.Valid {
		t := validUntil.Time
		token.ValidUntil = &t
	}

	return token, nil
}
