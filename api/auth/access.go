// Package auth verifies identity assertions issued by the access proxy in
// front of the dispatch console.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// AssertionHeader carries the signed identity of the dispatcher.
const AssertionHeader = "Cf-Access-Jwt-Assertion"

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Validator struct {
	audience string
	keys     *keySet
}

// NewValidator validates tokens for audience, using the keys published
// under https://<teamDomain>/cdn-cgi/access/certs.
func NewValidator(teamDomain, audience string) *Validator {
	return &Validator{
		audience: audience,
		keys:     newKeySet(fmt.Sprintf("https://%s/cdn-cgi/access/certs", teamDomain)),
	}
}

func (v *Validator) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in token header")
		}
		return v.keys.get(kid)
	}, jwt.WithAudience(v.audience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware rejects requests carrying an invalid assertion and records the
// email of valid ones in the request context. Requests without the header
// pass through so that bearer-token clients such as the CLI keep working.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AssertionHeader)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := v.Validate(token)
		if err != nil {
			http.Error(w, "invalid access token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), claims.Email)))
	})
}

type ctxKey struct{}

func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ctxKey{}, email)
}

// EmailFrom returns the verified email stored by Middleware, or "".
func EmailFrom(ctx context.Context) string {
	email, _ := ctx.Value(ctxKey{}).(string)
	return email
}
