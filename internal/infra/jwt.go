// README: HS256 JWT verifier and issuer for local runs and the bench client.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type JWTAuth struct {
	secret []byte
}

func NewJWTAuth(secret string) (*JWTAuth, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTAuth{secret: []byte(secret)}, nil
}

// Issue signs a token for uid carrying role as a claim.
func (a *JWTAuth) Issue(uid, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  uid,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *JWTAuth) VerifyIDToken(_ context.Context, raw string) (*Token, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Token{UID: sub, Claims: claims}, nil
}
