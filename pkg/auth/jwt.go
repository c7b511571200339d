package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("jwt secret is not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claims carries the identity issued by the external identity provider.
// The user ID is opaque to this service.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user ID, preferring the explicit claim over the subject
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Validator verifies HMAC-signed bearer tokens
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator creates a token validator. An empty issuer accepts any issuer.
func NewValidator(secret, issuer string) *Validator {
	return &Validator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken parses and verifies a token string
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Identity() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken signs a token for userID; used by tooling and tests
func (v *Validator) GenerateToken(userID string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
