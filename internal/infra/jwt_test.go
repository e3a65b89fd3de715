package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTAuth_IssueAndVerify(t *testing.T) {
	a, err := NewJWTAuth("s3cret")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw, err := a.Issue("driver-1", "driver", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tok, err := a.VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.UID != "driver-1" || tok.Claims["role"] != "driver" {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	a, _ := NewJWTAuth("s3cret")
	other, _ := NewJWTAuth("other")
	expired, _ := a.Issue("u1", "rider", -time.Minute)
	foreign, _ := other.Issue("u1", "rider", time.Hour)
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte("s3cret"))
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("s3cret"))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, raw := range map[string]string{
		"expired": expired, "wrong key": foreign, "no subject": noSub, "no expiry": noExp, "alg none": none, "garbage": "abc",
	} {
		if _, err := a.VerifyIDToken(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, err := NewJWTAuth(""); err == nil {
		t.Error("empty secret accepted")
	}
}
