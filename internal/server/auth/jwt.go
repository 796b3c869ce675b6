// Package auth signs and parses the session cookie value: an HS256 JWT whose
// only custom claim is the server-side session id.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the session id.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

func GenerateToken(sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		SessionID: sessionID,
	})

	return token.SignedString(secretKey)
}

// GetSessionIDFromToken verifies tokenString and returns its session id.
// Expired tokens yield common.ErrSessionExpired, anything else that fails
// verification yields common.ErrInvalidToken.
func GetSessionIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrSessionExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.SessionID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.SessionID, nil
}
