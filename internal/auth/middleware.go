package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/codevault/internal/model"
)

// CookieName is the HttpOnly cookie that carries the session JWT.
const CookieName = "token"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue accepts any key. A plain string like "user" could be
// read or shadowed by any package that knows it. Only this package can
// build a contextKey, so only this package can read or write the value.
type contextKey string

const userKey contextKey = "user"

// UserLoader is the slice of the user repository the middleware needs.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticator turns the session cookie into a *model.User on the request
// context.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new one that wraps it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
//
// Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
type Authenticator struct {
	tokens *TokenService
	users  UserLoader
}

func NewAuthenticator(tokens *TokenService, users UserLoader) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// RequireAuth rejects requests without a valid session for an active user
// with 401.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.resolve(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the user when a valid session is present and lets
// anonymous requests through untouched. Used on public reads such as
// GET /api/snippets, where a signed-in caller additionally sees their own
// private snippets.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := a.resolve(r); err == nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin must run after RequireAuth. Non-admins get 403.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
			return
		}
		if !user.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "forbidden", "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolve validates the cookie and loads the user it names. Deleted or
// deactivated accounts fail here even when the token is still valid.
func (a *Authenticator) resolve(r *http.Request) (*model.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, err
	}
	claims, err := a.tokens.Validate(cookie.Value)
	if err != nil {
		return nil, err
	}
	user, err := a.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, errInactive
	}
	return user, nil
}

type authError string

func (e authError) Error() string { return string(e) }

const errInactive = authError("auth: account is deactivated")

func writeAuthError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + kind + `","message":"` + msg + `"}`))
}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or (nil, false) for an
// anonymous request.
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // anonymous
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// SessionCookie builds the cookie set on login.
//
//	Set-Cookie: token=<jwt>; Path=/; HttpOnly; SameSite=Lax; Max-Age=<ttl>
//
// secure should be true whenever the server is reached over HTTPS.
func SessionCookie(token string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
