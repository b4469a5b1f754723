package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/auth"
	"github.com/sakif/codevault/internal/service"
)

const stateCookie = "oauth_state"

// GitHubLogin is the OAuth half of *auth.GitHubProvider.
type GitHubLogin interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages registration, password and GitHub login, and the
// caller's own account.
//
// HANDLER RESPONSIBILITIES:
//   - Register / Login      → service call, then set the JWT cookie
//   - Logout                → clear the JWT cookie
//   - Me / Profile / ...    → self-service on the signed-in account
//   - GitHubLogin/Callback  → OAuth redirect dance (only when configured)
type AuthHandler struct {
	svc        *service.AuthService
	github     GitHubLogin
	sessionTTL time.Duration
	secure     bool
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil, in which case
// the OAuth routes answer 404.
func NewAuthHandler(svc *service.AuthService, github GitHubLogin, sessionTTL time.Duration, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, github: github, sessionTTL: sessionTTL, secure: secure, logger: logger}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// HandleRegister creates an account and signs it in.
//
// HTTP: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Register(r.Context(), actorFrom(r).IP, in)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(res.Token, h.sessionTTL, h.secure))
	writeJSON(w, http.StatusCreated, res.User)
}

// HandleLogin checks a username-or-email and password.
//
// HTTP: POST /api/auth/login
// The route sits behind the per-IP rate limiter.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Login(r.Context(), actorFrom(r).IP, in.Login, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(res.Token, h.sessionTTL, h.secure))
	writeJSON(w, http.StatusOK, res.User)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /api/auth/logout
//
// WHY POST AND NOT GET?
// Logout changes state. A GET could be triggered by an <img> tag on another
// site or by a browser pre-fetching links.
//
// Since sessions are stateless JWTs, "logout" just deletes the cookie. The
// token stays valid until it expires, but the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearSessionCookie(h.secure))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: PUT /api/auth/password
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in passwordRequest
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), actorFrom(r), in.CurrentPassword, in.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// HTTP: PUT /api/auth/profile
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.ProfileInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: PUT /api/auth/integrations
func (h *AuthHandler) HandleUpdateIntegrations(w http.ResponseWriter, r *http.Request) {
	var in service.IntegrationsInput
	if err := decodeJSON(w, r, &in, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.svc.UpdateIntegrations(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// redirect URL. The callback only proceeds when both match, proving the
// flow was started from this browser.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("login provider", "github"))
		return
	}
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Link to an existing account or create one (service layer)
//  4. Set the JWT cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("login provider", "github"))
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch", slog.String("ip", actorFrom(r).IP))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.svc.LoginGitHub(r.Context(), actorFrom(r).IP, ghUser)
	if err != nil {
		status, kind := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, "/?auth="+kind, http.StatusSeeOther)
		return
	}

	http.SetCookie(w, auth.SessionCookie(res.Token, h.sessionTTL, h.secure))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
