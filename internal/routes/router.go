package routes

import (
	"log/slog"
	"net/http"
	"strings"

	"next2play/internal/config"
	"next2play/internal/controllers"
	appmw "next2play/internal/middleware"
	"next2play/internal/session"
	"next2play/internal/tracing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(log *slog.Logger, cfg *config.Config, games controllers.GameServicer, sessions *session.Manager) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Cors,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	gameController := controllers.NewGameController(games, log)
	authController := controllers.NewAuthController(log, sessions, cfg.Auth.Password, controllers.CookieOptions{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.SecureCookie,
	})
	auth := appmw.NewAuthMiddleware(sessions, cfg.Auth.CookieName, log)

	r.Get("/login", authController.LoginPage)
	r.Post("/login", authController.Login)
	r.Post("/view_only", authController.ViewOnly)
	r.Get("/logout", authController.Logout)

	prefix := "/" + strings.Trim(cfg.ImagesURLPrefix, "/")
	r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.UploadsPath))))

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession)

		r.Get("/", gameController.Index)
		r.Post("/search_games", gameController.SearchGames)
		r.Get("/random_game", gameController.RandomGame)
		r.Get("/in_progress_game", gameController.InProgressGame)
		r.Get("/stats", gameController.Stats)
		r.Get("/recent_games", gameController.RecentGames)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireFullAccess)

			r.Post("/add_game", gameController.AddGame)
			r.Post("/update_games", gameController.UpdateGames)
			r.Delete("/delete_game/{id}", gameController.DeleteGame)
			r.Post("/update_status/{id}", gameController.UpdateStatus)
			r.Post("/admin/refetch_images", gameController.RefetchImages)
		})
	})

	// Bulk refresh and cover refetch walk the whole collection.
	long := appmw.ExtendWriteDeadline(cfg.LongTimeout, log, "/update_games", "/admin/refetch_images")

	return long(tracing.Middleware("next2play")(r))
}
