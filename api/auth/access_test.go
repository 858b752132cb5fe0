package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mustGenKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func keySetJSON(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	data, err := json.Marshal(jwkSet{Keys: []jwk{{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid, aud string, exp time.Time) string {
	t.Helper()
	claims := &Claims{
		Email: "dispatcher@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func setupValidator(t *testing.T, key *rsa.PrivateKey, kid, aud string) (*Validator, *int32) {
	t.Helper()
	data := keySetJSON(t, kid, &key.PublicKey)
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)

	v := NewValidator("test.cloudflareaccess.com", aud)
	v.keys.url = srv.URL
	v.keys.client = srv.Client()
	return v, &fetches
}

func TestValidate(t *testing.T) {
	key := mustGenKey(t)
	v, fetches := setupValidator(t, key, "key-1", "aud")

	claims, err := v.Validate(signToken(t, key, "key-1", "aud", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Email != "dispatcher@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}

	if _, err := v.Validate(signToken(t, key, "key-1", "aud", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("second Validate: %v", err)
	}
	if n := atomic.LoadInt32(fetches); n != 1 {
		t.Errorf("key set fetched %d times, want 1", n)
	}
}

func TestValidateRejects(t *testing.T) {
	key := mustGenKey(t)
	other := mustGenKey(t)
	v, _ := setupValidator(t, key, "key-1", "aud")

	tests := []struct {
		name  string
		token string
	}{
		{"expired", signToken(t, key, "key-1", "aud", time.Now().Add(-time.Hour))},
		{"wrong audience", signToken(t, key, "key-1", "other", time.Now().Add(time.Hour))},
		{"unknown kid", signToken(t, key, "key-9", "aud", time.Now().Add(time.Hour))},
		{"wrong key", signToken(t, other, "key-1", "aud", time.Now().Add(time.Hour))},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Validate(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	key := mustGenKey(t)
	v, _ := setupValidator(t, key, "key-1", "aud")

	var seenEmail string
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenEmail = EmailFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name      string
		token     string
		wantCode  int
		wantEmail string
	}{
		{"valid", signToken(t, key, "key-1", "aud", time.Now().Add(time.Hour)), http.StatusOK, "dispatcher@example.com"},
		{"invalid", "garbage", http.StatusForbidden, ""},
		{"no header", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenEmail = ""
			req := httptest.NewRequest("GET", "/api/jobs", nil)
			if tt.token != "" {
				req.Header.Set(AssertionHeader, tt.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if seenEmail != tt.wantEmail {
				t.Errorf("email = %q, want %q", seenEmail, tt.wantEmail)
			}
		})
	}
}

func TestEmailFromEmptyContext(t *testing.T) {
	if got := EmailFrom(context.Background()); got != "" {
		t.Errorf("EmailFrom = %q", got)
	}
	if got := EmailFrom(WithEmail(context.Background(), "a@b.c")); got != "a@b.c" {
		t.Errorf("EmailFrom = %q", got)
	}
}
