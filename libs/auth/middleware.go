package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/httpx"
)

// UserIDHeader carries the caller id when a trusted gateway terminates authentication.
const UserIDHeader = "X-User-Id"

type ctxKey struct{}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func ContextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequireUser resolves the caller id and rejects the request with 401 when none is present.
// With a non-empty secret only a valid HS256 bearer token is accepted; otherwise the
// X-User-Id header is trusted.
func RequireUser(secret string, now func() time.Time) httpx.Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if secret != "" {
				token, ok := bearerToken(r)
				if !ok {
					httpx.WriteError(w, http.StatusUnauthorized, "missing bearer token")
					return
				}
				claims, err := ParseAndVerifyHS256(token, secret, now())
				if err != nil {
					httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				id = claims.Sub
			} else {
				id = strings.TrimSpace(r.Header.Get(UserIDHeader))
			}
			if id == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
