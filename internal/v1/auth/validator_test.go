package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, claims CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestNewValidator_EmptySecret(t *testing.T) {
	_, err := NewValidator("")
	assert.Error(t, err)
}

func TestResolveIdentity_Valid(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	claims := CustomClaims{
		Name:         "Alice",
		AvatarURL:    "https://cdn.example.com/a.png",
		ProfileFrame: "gold",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	identity, err := v.ResolveIdentity(context.Background(), signToken(t, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, "user-7", identity.UserID)
	assert.Equal(t, "Alice", identity.DisplayName)
	assert.Equal(t, "https://cdn.example.com/a.png", identity.AvatarURL)
	assert.Equal(t, "gold", identity.ProfileFrame)
}

func TestResolveIdentity_WrongSecret(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	claims := CustomClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	_, err = v.ResolveIdentity(context.Background(), signToken(t, "another-secret-another-secret-xx", claims))
	assert.Error(t, err)
}

func TestResolveIdentity_Expired(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	claims := CustomClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}

	_, err = v.ResolveIdentity(context.Background(), signToken(t, testSecret, claims))
	assert.Error(t, err)
}

func TestResolveIdentity_NoSubject(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	claims := CustomClaims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	_, err = v.ResolveIdentity(context.Background(), signToken(t, testSecret, claims))
	assert.Error(t, err)
}

func TestResolveIdentity_Garbage(t *testing.T) {
	v, err := NewValidator(testSecret)
	require.NoError(t, err)

	_, err = v.ResolveIdentity(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestMockValidator(t *testing.T) {
	m := &MockValidator{}

	claims := CustomClaims{Name: "Bob", RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"}}
	identity, err := m.ResolveIdentity(context.Background(), signToken(t, "any-secret", claims))
	require.NoError(t, err)
	assert.Equal(t, "user-9", identity.UserID)
	assert.Equal(t, "Bob", identity.DisplayName)

	// Unparseable tokens fall back to the dev identity
	identity, err = m.ResolveIdentity(context.Background(), "garbage")
	require.NoError(t, err)
	assert.Equal(t, "dev-user-123", identity.UserID)
}

func TestGetAllowedOriginsFromEnv(t *testing.T) {
	const key = "TEST_ALLOWED_ORIGINS"
	defer os.Unsetenv(key)

	os.Unsetenv(key)
	origins := GetAllowedOriginsFromEnv(key, []string{"http://localhost:3000"})
	assert.Equal(t, []string{"http://localhost:3000"}, origins)

	os.Setenv(key, "https://a.example.com,https://b.example.com")
	origins = GetAllowedOriginsFromEnv(key, nil)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, origins)
}
