// Package auth issues and validates participant tokens.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims ties a token to one participant in one party.
type Claims struct {
	ParticipantID string `json:"pid"`
	PartyID       string `json:"party_id"`
	DisplayName   string `json:"display_name"`
	jwt.RegisteredClaims
}

// Issue creates a signed token string for the participant.
func Issue(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Subject:   claims.ParticipantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates a token string.
func Parse(secret []byte, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
