package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testJWT = &JWTConfig{
	Secret:   []byte("test-secret-change-me"),
	Issuer:   "test",
	Audience: "test",
	TTL:      time.Hour,
}

func makeJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestValidateTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(testJWT, "u1", "alice", false)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ValidateToken(testJWT, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	good := jwt.MapClaims{
		"user_id": "u1",
		"iss":     "test",
		"aud":     "test",
		"exp":     time.Now().Add(time.Minute).Unix(),
	}
	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", makeJWT(t, "other", good)},
		{"wrong issuer", makeJWT(t, "test-secret-change-me", jwt.MapClaims{"user_id": "u1", "iss": "x", "aud": "test", "exp": good["exp"]})},
		{"wrong audience", makeJWT(t, "test-secret-change-me", jwt.MapClaims{"user_id": "u1", "iss": "test", "aud": "x", "exp": good["exp"]})},
		{"expired", makeJWT(t, "test-secret-change-me", jwt.MapClaims{"user_id": "u1", "iss": "test", "aud": "test", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(testJWT, tt.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseClaimsWithoutKey(t *testing.T) {
	token := makeJWT(t, "server-only-secret", jwt.MapClaims{
		"user_id":  "u7",
		"username": "bob",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	claims, err := ParseClaims(token, time.Now())
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.UserID != "u7" || claims.Username != "bob" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := ParseClaims(token, time.Now().Add(2*time.Hour)); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	anonymous := makeJWT(t, "k", jwt.MapClaims{"username": "nobody"})
	if _, err := ParseClaims(anonymous, time.Now()); err == nil {
		t.Fatal("expected error for token without user id")
	}
}

func TestSessionPersistsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")

	s, err := OpenSession(path)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := s.User(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	token, err := GenerateToken(testJWT, "u1", "alice", false)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if err := s.Save(token); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := OpenSession(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Token() != token {
		t.Fatal("token not persisted")
	}
	user, err := reopened.User()
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if user.ID != "u1" || user.Name != "alice" {
		t.Fatalf("unexpected user %+v", user)
	}

	if err := reopened.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := reopened.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	again, err := OpenSession(path)
	if err != nil {
		t.Fatalf("reopen after clear: %v", err)
	}
	if again.Token() != "" {
		t.Fatal("token survived Clear")
	}
}
