package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestBearerTokenFromHeaderSuccess(t *testing.T) {
	token, err := bearerTokenFromHeader("Bearer header.payload.signature")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", token)
	}
}

func TestBearerTokenFromHeaderMissing(t *testing.T) {
	if _, err := bearerTokenFromHeader(""); err == nil || err.Error() != "missing authorization header" {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestBearerTokenFromHeaderWrongScheme(t *testing.T) {
	if _, err := bearerTokenFromHeader("Basic abc.def.ghi"); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestBearerTokenFromHeaderManyPeriods(t *testing.T) {
	header := "Bearer " + strings.Repeat(".", 1000)
	if _, err := bearerTokenFromHeader(header); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func testAuthHS256(secret []byte) *Auth {
	return &Auth{
		Audience:   "api://aud",
		Issuer:     "https://issuer/",
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestUserIDFromAuthHeaderHS256(t *testing.T) {
	secret := []byte("test-secret")
	signed := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	})

	userID, err := testAuthHS256(secret).UserIDFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromAuthHeaderExpired(t *testing.T) {
	secret := []byte("test-secret")
	signed := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-5 * time.Minute).Unix(),
	})

	if _, err := testAuthHS256(secret).UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestUserIDFromAuthHeaderWrongAudience(t *testing.T) {
	secret := []byte("test-secret")
	signed := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://other",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})

	if _, err := testAuthHS256(secret).UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected audience mismatch to be rejected")
	}
}

func TestUserIDFromAuthHeaderMissingSub(t *testing.T) {
	secret := []byte("test-secret")
	signed := signHS256(t, secret, jwt.MapClaims{
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})

	if _, err := testAuthHS256(secret).UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected token without sub to be rejected")
	}
}
