package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// defaultAccessTTLMinutes applies when the configured TTL is zero.
	defaultAccessTTLMinutes = 15

	// refreshTokenBytes gives 256-bit refresh tokens.
	refreshTokenBytes = 32
)

// Claims is the JWT payload for operator access tokens. SessionID ties
// the token to the refresh session it was minted under, which lets the
// audit log group actions per login.
type Claims struct {
	jwt.RegisteredClaims
	Username  string `json:"username"`
	SessionID string `json:"sid"`
}

// GenerateAccessToken mints a signed HS256 access token for the
// operator. Access tokens are validated by signature only, so parsing
// never touches storage.
func GenerateAccessToken(username, sessionID, secret string, ttlMinutes int) (string, error) {
	if ttlMinutes <= 0 {
		ttlMinutes = defaultAccessTTLMinutes
	}
	now := time.Now()
	expiry := now.Add(time.Duration(ttlMinutes) * time.Minute)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.NewString(),
		},
		Username:  username,
		SessionID: sessionID,
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// GenerateRefreshToken draws a cryptographically random refresh token.
// The raw value goes to the client; only its hash is kept server-side.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ParseToken validates an access token and returns its claims.
// Signature, expiry and the HS256 method constraint come from the jwt
// library; the subject check catches tokens minted by something other
// than this bridge. Expired tokens map to ErrTokenExpired so the
// middleware can hint the client to refresh.
func ParseToken(tokenString, secret string) (*Claims, error) {
	keyfunc := func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}
