package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const operatorRole = "operator"

type operatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an operator session token for subject valid for ttl.
func GenerateToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := &operatorClaims{
		Role: operatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates an operator token and returns its subject and expiry.
func ParseToken(secret, tokenString string) (string, time.Time, error) {
	token, err := jwt.ParseWithClaims(tokenString, &operatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", time.Time{}, err
	}

	claims, ok := token.Claims.(*operatorClaims)
	if !ok || !token.Valid || claims.Role != operatorRole || claims.Subject == "" {
		return "", time.Time{}, jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, claims.ExpiresAt.Time, nil
}
