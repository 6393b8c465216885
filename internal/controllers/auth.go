package controllers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"next2play/internal/session"
)

type SessionIssuer interface {
	Issue(mode session.Mode) (string, error)
	TTL() time.Duration
}

type CookieOptions struct {
	Name   string
	Secure bool
}

type AuthController struct {
	log      *slog.Logger
	sessions SessionIssuer
	password string
	cookie   CookieOptions
}

func NewAuthController(log *slog.Logger, sessions SessionIssuer, password string, cookie CookieOptions) *AuthController {
	return &AuthController{log: log, sessions: sessions, password: password, cookie: cookie}
}

type loginPage struct {
	Error string
}

func (c *AuthController) LoginPage(w http.ResponseWriter, r *http.Request) {
	c.renderLogin(w, http.StatusOK, "")
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.auth.Login"

	if err := r.ParseForm(); err != nil {
		c.log.Error(ErrParsingForm.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		c.renderLogin(w, http.StatusBadRequest, ErrLogin.Error())
		return
	}

	password := r.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(password), []byte(c.password)) != 1 {
		c.log.Warn(ErrWrongPass.Error(), slog.String("operation", op), slog.String("remote", r.RemoteAddr))
		c.renderLogin(w, http.StatusUnauthorized, "Wrong password")
		return
	}

	c.startSession(w, r, op, session.ModeFull)
}

func (c *AuthController) ViewOnly(w http.ResponseWriter, r *http.Request) {
	const op = "controllers.auth.ViewOnly"

	c.startSession(w, r, op, session.ModeViewOnly)
}

func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/login", http.StatusFound)
}

func (c *AuthController) startSession(w http.ResponseWriter, r *http.Request, op string, mode session.Mode) {
	token, err := c.sessions.Issue(mode)
	if err != nil {
		c.log.Error(ErrLogin.Error(), slog.String("operation", op), slog.String("error", err.Error()))
		http.Error(w, ErrLogin.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   c.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	c.log.Info("session started", slog.String("operation", op), slog.String("mode", string(mode)))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (c *AuthController) renderLogin(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := templates.ExecuteTemplate(w, "login.html", loginPage{Error: msg}); err != nil {
		c.log.Error(ErrRender.Error(), slog.String("error", err.Error()))
	}
}
