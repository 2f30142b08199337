// Package auth guards the publish endpoints with bearer-token authentication.
package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyUserID ctxKey = "publisher.userID"

// UserFromContext returns the authenticated user id, or "" when the request
// came in through the debug-token path.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// Verifier validates HS256 bearer tokens issued by the campaign frontend.
type Verifier struct {
	secret     []byte
	debugToken string
}

// NewVerifier builds a verifier. debugToken, when non-empty, allows requests
// carrying X-Debug-Token to bypass JWT validation (local development only).
func NewVerifier(secret, debugToken string) (*Verifier, error) {
	if secret == "" && debugToken == "" {
		return nil, fmt.Errorf("auth secret or debug token required")
	}
	return &Verifier{secret: []byte(secret), debugToken: debugToken}, nil
}

// Middleware rejects unauthenticated requests and stores the token subject in
// the request context for downstream handlers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.debugToken != "" {
			if token := r.Header.Get("X-Debug-Token"); token != "" && token == v.debugToken {
				next.ServeHTTP(w, r)
				return
			}
		}
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			http.Error(w, "bearer token required", http.StatusUnauthorized)
			return
		}
		subject, err := v.verifyToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			log.Printf("[auth] token rejected: %v", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (v *Verifier) verifyToken(tokenStr string) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("no auth secret configured")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return subject, nil
}
