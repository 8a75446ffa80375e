package syncer

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "cashier",
		"exp": exp.Unix(),
	}).SignedString([]byte("local-test-key"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if !tokenExpired(signedToken(t, now.Add(-time.Hour)), now) {
		t.Fatal("token past its exp must read as expired")
	}
	if tokenExpired(signedToken(t, now.Add(time.Hour)), now) {
		t.Fatal("token before its exp must not read as expired")
	}
	if tokenExpired("not-a-jwt", now) {
		t.Fatal("unparseable token is left for the server to judge")
	}
}
