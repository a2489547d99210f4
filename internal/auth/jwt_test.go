package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{Operator: "ops", Guilds: []string{"g1"}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Operator != "ops" || claims.Subject != "ops" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.CanView("g1") || claims.CanView("g2") {
		t.Fatalf("guild scope not applied: %v", claims.Guilds)
	}
}

func TestParse_Rejects(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	sign := func(method jwt.SigningMethod, key []byte, rc jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(method, Claims{Operator: "ops", RegisteredClaims: rc}).SignedString(key)
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		return s
	}
	valid := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    "guildtune",
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	foreign := valid
	foreign.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"other algorithm", sign(jwt.SigningMethodHS384, secret, valid)},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other"), valid)},
		{"expired", sign(jwt.SigningMethodHS256, secret, expired)},
		{"foreign issuer", sign(jwt.SigningMethodHS256, secret, foreign)},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(secret, tt.token); err == nil {
				t.Fatal("expected parse to fail")
			}
		})
	}
}

func TestClaimsWithoutGuildsSeeEverything(t *testing.T) {
	c := &Claims{Operator: "ops"}
	if !c.CanView("any") {
		t.Fatal("unscoped claims should see every guild")
	}
}
