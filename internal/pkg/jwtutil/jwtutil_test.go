package jwtutil

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("secret", time.Hour, 42, "ada")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "ada" || claims.Subject != "42" || claims.Namespace() != "42" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	good, _ := GenerateToken("secret", time.Hour, 1, "u")
	expired, _ := GenerateToken("secret", -time.Minute, 1, "u")
	anonymous, _ := GenerateToken("secret", time.Hour, 0, "u")

	cases := map[string]struct{ secret, token string }{
		"wrong secret": {"other", good},
		"expired":      {"secret", expired},
		"no user":      {"secret", anonymous},
		"garbage":      {"secret", "not.a.token"},
	}
	for name, tc := range cases {
		if _, err := ParseToken(tc.secret, tc.token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}
