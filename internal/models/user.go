package models

import "time"

// User представляет зарегистрированного пользователя (principal)
type User struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `json:"email"` // уникальный email, используется как login identifier
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // argon2id PHC строка, никогда не сериализуется
	ID           int64     `json:"id"`
}

// RefreshToken is the persisted record of an issued refresh token.
// Identifier is the token's own ID (the jti claim), not its signature.
type RefreshToken struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// ValidUntil nil means no explicit expiry recorded; such a token is not revoked.
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Identifier string     `json:"identifier"`
	UserID     int64      `json:"user_id"`
}

// IsValid reports whether the token is usable at the given moment.
func (t *RefreshToken) IsValid(now time.Time) bool {
	if t == nil {
		return false
	}
	if t.ValidUntil == nil {
		return true
	}
	return !t.ValidUntil.Before(now)
}

// Revoke marks the token as no longer valid starting at now.
// ValidUntil lands one nanosecond before now, so IsValid(now) is already false.
func (t *RefreshToken) Revoke(now time.Time) {
	until := now.Add(-time.Nanosecond)
	t.ValidUntil = &until
	t.UpdatedAt = now
}

// PasswordResetToken authorizes a single password change.
// Only the SHA-256 digest of the signed reset token is stored.
type PasswordResetToken struct {
	ValidUntil time.Time  `json:"valid_until"`
	CreatedAt  time.Time  `json:"created_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	TokenHash  string     `json:"-"`
	UserID     int64      `json:"user_id"`
	ID         int64      `json:"id"`
}

// Usable reports whether the reset token was not consumed and has not expired.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && !t.ValidUntil.Before(now)
}
