package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// ExtendWriteDeadline raises the server write deadline to d for requests on
// the listed paths. It has to sit outside any ResponseWriter wrapper that does
// not support http.ResponseController.
func ExtendWriteDeadline(d time.Duration, log *slog.Logger, paths ...string) func(http.Handler) http.Handler {
	const op = "middleware.deadline.ExtendWriteDeadline"

	long := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		long[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := long[r.URL.Path]; ok && d > 0 {
				if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d)); err != nil {
					log.Warn("cannot extend write deadline",
						slog.String("operation", op),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
