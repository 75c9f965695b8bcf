// Package auth resolves bearer tokens into account identities for the
// connection gateway. Authenticated players carry an `acct:<userId>`
// identity key; everything else in the room runtime is identity-agnostic.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quizbattle/quizroom/internal/v1/logging"
)

// Identity is the resolved account behind a bearer token. Cosmetic fields
// ride along so the room can render profile assets without a second lookup.
type Identity struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName,omitempty"`
	AvatarURL          string `json:"avatarUrl,omitempty"`
	ProfileFrame       string `json:"profileFrame,omitempty"`
	MascotSkinCat      string `json:"mascotSkinCat,omitempty"`
	MascotSkinDog      string `json:"mascotSkinDog,omitempty"`
	VictoryEffectFront string `json:"victoryEffectFront,omitempty"`
	VictoryEffectBack  string `json:"victoryEffectBack,omitempty"`
}

// CustomClaims represents the JWT claims issued by the account service.
type CustomClaims struct {
	Name               string `json:"name,omitempty"`
	AvatarURL          string `json:"avatarUrl,omitempty"`
	ProfileFrame       string `json:"profileFrame,omitempty"`
	MascotSkinCat      string `json:"mascotSkinCat,omitempty"`
	MascotSkinDog      string `json:"mascotSkinDog,omitempty"`
	VictoryEffectFront string `json:"victoryEffectFront,omitempty"`
	VictoryEffectBack  string `json:"victoryEffectBack,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HS256 tokens minted by the account service.
type Validator struct {
	secret []byte
}

// NewValidator creates a Validator from the shared signing secret.
func NewValidator(secret string) (*Validator, error) {
	if secret == "" {
		return nil, errors.New("auth secret must not be empty")
	}
	return &Validator{secret: []byte(secret)}, nil
}

// ResolveIdentity parses and validates a bearer token and returns the account
// identity it carries. Expired, malformed or foreign-signed tokens fail.
func (v *Validator) ResolveIdentity(_ context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("failed to cast claims to CustomClaims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &Identity{
		UserID:             claims.Subject,
		DisplayName:        claims.Name,
		AvatarURL:          claims.AvatarURL,
		ProfileFrame:       claims.ProfileFrame,
		MascotSkinCat:      claims.MascotSkinCat,
		MascotSkinDog:      claims.MascotSkinDog,
		VictoryEffectFront: claims.VictoryEffectFront,
		VictoryEffectBack:  claims.VictoryEffectBack,
	}, nil
}

func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	// Example: ALLOWED_ORIGINS="http://localhost:3000,https://your-app.com"
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		// Provide sensible defaults for local development if the env var isn't set.
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins:\n%s", envVarName, defaultEnvs))
		return defaultEnvs
	}
	return strings.Split(originsStr, ",")
}

// MockValidator is a development-only identity resolver that accepts any token.
// It decodes the payload without verifying the signature so the identity key
// still matches what the frontend sent.
type MockValidator struct{}

func (m *MockValidator) ResolveIdentity(_ context.Context, tokenString string) (*Identity, error) {
	identity := &Identity{}

	// Parse JWT token (format: header.payload.signature)
	parts := strings.Split(tokenString, ".")
	if len(parts) == 3 {
		// Decode the payload (base64 URL encoded)
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err == nil {
			var claims map[string]interface{}
			if json.Unmarshal(payload, &claims) == nil {
				if sub, ok := claims["sub"].(string); ok {
					identity.UserID = sub
				}
				if n, ok := claims["name"].(string); ok {
					identity.DisplayName = n
				}
				if a, ok := claims["avatarUrl"].(string); ok {
					identity.AvatarURL = a
				}
			}
		}
	}

	// Fallback to defaults if parsing failed
	if identity.UserID == "" {
		identity.UserID = "dev-user-123"
	}
	if identity.DisplayName == "" {
		identity.DisplayName = "Dev User"
	}

	return identity, nil
}
