package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"next2play/internal/session"
)

type SessionParser interface {
	Parse(raw string) (*session.Claims, error)
}

type AuthMiddleware struct {
	sessions   SessionParser
	cookieName string
	log        *slog.Logger
}

func NewAuthMiddleware(sessions SessionParser, cookieName string, log *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, cookieName: cookieName, log: log}
}

type contextKey string

const AccessKey = contextKey("access")

// Access is what the current request is allowed to do.
type Access struct {
	Mode session.Mode
}

func (a Access) ViewOnly() bool {
	return a.Mode != session.ModeFull
}

func WithAccess(ctx context.Context, a Access) context.Context {
	return context.WithValue(ctx, AccessKey, a)
}

func AccessFromContext(ctx context.Context) (Access, bool) {
	a, ok := ctx.Value(AccessKey).(Access)
	return a, ok
}

// RequireSession sends requests without a valid session cookie to the login page.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "middleware.auth.RequireSession"

		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		claims, err := m.sessions.Parse(cookie.Value)
		if err != nil {
			m.log.Debug("session rejected",
				slog.String("operation", op),
				slog.String("error", err.Error()))
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := WithAccess(r.Context(), Access{Mode: claims.Mode})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireFullAccess rejects view-only sessions. It must run after RequireSession.
func (m *AuthMiddleware) RequireFullAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, ok := AccessFromContext(r.Context())
		if !ok || access.ViewOnly() {
			http.Error(w, "View-only access", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
