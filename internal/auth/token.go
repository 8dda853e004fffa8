// ABOUTME: JWT session token parsing for deriving the local user id
// ABOUTME: Verifies HS256 tokens when the secret is known, otherwise reads claims unverified

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// userClaims are checked in order for the account id.
var userClaims = []string{"userId", "sub"}

// Identity is who the session token belongs to.
type Identity struct {
	UserID    string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// TokenVerifier turns a session token into an Identity.
type TokenVerifier interface {
	Verify(tokenString string) (Identity, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the signature and expiry and extracts the identity.
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	return identityFrom(token)
}

// Generate creates a token for userID with expiration. Used by tooling and tests.
func (v *JWTVerifier) Generate(userID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"userId": userID,
		"iat":    now.Unix(),
		"exp":    now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// UnverifiedParser reads identity claims without checking the signature.
// Expiry is still enforced.
type UnverifiedParser struct {
	now func() time.Time
}

// NewUnverifiedParser creates a parser that uses the wall clock for expiry.
func NewUnverifiedParser() *UnverifiedParser {
	return &UnverifiedParser{now: time.Now}
}

// Verify parses tokenString and returns its identity.
func (p *UnverifiedParser) Verify(tokenString string) (Identity, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := identityFrom(token)
	if err != nil {
		return Identity{}, err
	}
	if !id.ExpiresAt.IsZero() && !p.now().Before(id.ExpiresAt) {
		return Identity{}, ErrExpiredToken
	}
	return id, nil
}

func identityFrom(token *jwt.Token) (Identity, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	var id Identity
	for _, name := range userClaims {
		if s, ok := claims[name].(string); ok && s != "" {
			id.UserID = s
			break
		}
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: userId", ErrMissingClaim)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

var (
	_ TokenVerifier = (*JWTVerifier)(nil)
	_ TokenVerifier = (*UnverifiedParser)(nil)
)
