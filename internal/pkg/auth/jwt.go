// Package auth provides functionality for generating and parsing JSON Web Tokens (JWT)
// for user authentication. It defines custom claims carrying the user ID and role,
// token generation, and validation logic.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"rewear/internal/config"
)

// secretKey is the key used to sign the JWT, sourced from configuration.
var secretKey = []byte(config.JWTSecret)

// TOKENEXP defines the token expiration duration.
const TOKENEXP = time.Hour * 3

// Claims represents the custom JWT claims that include the user ID, the
// user's role and standard claims. It embeds jwt.RegisteredClaims for
// standard fields like expiration time.
type Claims struct {
	UserID int32
	Role   string
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a given userID and role.
// It sets the expiration time based on TOKENEXP and includes both values in the claims.
func GenerateToken(userID int32, role string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TOKENEXP)),
		},
		UserID: userID,
		Role:   role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// ParseToken validates the provided JWT token string and parses its claims.
// It returns the Claims if the token is valid, or an error otherwise.
func ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
