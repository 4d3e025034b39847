package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// Authenticator проверяет access token и возвращает его владельца.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// AuthMiddleware требует Authorization: Bearer <access_token>.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") || len(h) <= 7 {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			user, err := auth.Authenticate(r.Context(), strings.TrimSpace(h[7:]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, *user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserFromCtx(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(domain.User)
	return u, ok && u.ID > 0
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
