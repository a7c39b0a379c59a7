package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		errMsg  string
		wantErr bool
	}{
		{name: "valid email", email: "a@b.com"},
		{name: "valid email with plus", email: "alice+work@example.org"},
		{name: "valid email with subdomain", email: "bob@mail.example.co.uk"},
		{name: "empty", email: "", wantErr: true, errMsg: "email cannot be empty"},
		{name: "missing at", email: "alice.example.com", wantErr: true, errMsg: "valid address"},
		{name: "display name", email: "Alice <alice@example.com>", wantErr: true, errMsg: "valid address"},
		{name: "no dot in domain", email: "alice@localhost", wantErr: true, errMsg: "dot"},
		{
			name:    "too long",
			email:   strings.Repeat("a", 250) + "@b.com",
			wantErr: true,
			errMsg:  "must not exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM \n"))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid password", password: "longenough1"},
		{name: "exactly minimum", password: strings.Repeat("x", MinPasswordLen)},
		{name: "multibyte counted as runes", password: strings.Repeat("я", MinPasswordLen)},
		{name: "empty", password: "", wantErr: true},
		{name: "too short", password: "short", wantErr: true},
		{name: "too long", password: strings.Repeat("x", MaxPasswordLen+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("Alice"))
	assert.Error(t, ValidateName("   "))
	assert.Error(t, ValidateName(strings.Repeat("n", MaxNameLen+1)))
}

func TestErrors(t *testing.T) {
	errs := Errors{}
	assert.True(t, errs.Empty())

	errs.Check("email", nil)
	assert.True(t, errs.Empty())

	errs.Check("email", ValidateEmail(""))
	errs.Add("email", "second message")
	errs.Add("password", "too short")

	assert.False(t, errs.Empty())
	assert.Equal(t, []string{"email cannot be empty", "second message"}, errs["email"])
	assert.Equal(t, []string{"too short"}, errs["password"])
}
