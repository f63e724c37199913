// Package testhelpers provides utilities for testing chat engine components.
package testhelpers

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateTestJWT signs an HS256 token for userID that expires after ttl.
// A negative ttl produces an expired token.
func GenerateTestJWT(secret string, userID int64, email string, ttl time.Duration) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   strconv.FormatInt(userID, 10),
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return signed
}

// GenerateTestJWTWithBearer returns the token with a "Bearer " prefix for the
// Authorization header.
func GenerateTestJWTWithBearer(secret string, userID int64, email string) string {
	return "Bearer " + GenerateTestJWT(secret, userID, email, time.Hour)
}
