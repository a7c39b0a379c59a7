package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// ErrInvalidHash indicates that the stored password hash cannot be parsed
var ErrInvalidHash = errors.New("invalid password hash format")

// Params задает параметры Argon2id
type Params struct {
	Memory     uint32 // объем памяти в KB
	Time       uint32 // количество итераций
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultParams returns the production Argon2id parameters
func DefaultParams() Params {
	return Params{
		Memory:     64 * 1024,
		Time:       1,
		Threads:    4,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// PasswordHasher хеширует и проверяет пароли пользователей.
// Хеш хранится в PHC формате: $argon2id$v=19$m=...,t=...,p=...$salt$hash
type PasswordHasher struct {
	params Params
}

// NewPasswordHasher creates a hasher with the given parameters
func NewPasswordHasher(params Params) (*PasswordHasher, error) {
	if params.Memory < 8*1024 {
		return nil, fmt.Errorf("argon2 memory must be at least 8192 KB, got %d", params.Memory)
	}
	if params.Time < 1 {
		return nil, fmt.Errorf("argon2 time must be at least 1")
	}
	if params.Threads < 1 {
		return nil, fmt.Errorf("argon2 threads must be at least 1")
	}
	if params.SaltLength < 16 {
		return nil, fmt.Errorf("salt length must be at least 16 bytes")
	}
	if params.KeyLength < 16 {
		return nil, fmt.Errorf("key length must be at least 16 bytes")
	}

	return &PasswordHasher{params: params}, nil
}

// Hash returns the PHC encoded Argon2id hash of password
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash.
// Сравнение выполняется за постоянное время.
func (h *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	p, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLength)

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func decodeHash(encodedHash string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, nil, nil, ErrInvalidHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version", ErrInvalidHash)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: bad parameters", ErrInvalidHash)
	}
	if p.Memory == 0 || p.Time == 0 || threads == 0 || threads > 255 {
		return p, nil, nil, fmt.Errorf("%w: bad parameters", ErrInvalidHash)
	}
	p.Threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: bad salt", ErrInvalidHash)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: bad key", ErrInvalidHash)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))

	return p, salt, key, nil
}
