package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[string]*model.User

func (f fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, apperror.NotFound("user", id)
}

func setup(t *testing.T) (*Authenticator, *TokenService) {
	t.Helper()
	ts := newTestTokenService(t)
	users := fakeUsers{
		"u1":    {ID: "u1", Username: "alice", Role: model.RoleUser, Active: true},
		"admin": {ID: "admin", Username: "root", Role: model.RoleAdmin, Active: true},
		"off":   {ID: "off", Username: "gone", Role: model.RoleUser, Active: false},
	}
	return NewAuthenticator(ts, users), ts
}

func requestWithToken(t *testing.T, ts *TokenService, userID string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != "" {
		token, err := ts.Generate(userID, model.RoleUser)
		require.NoError(t, err)
		r.AddCookie(SessionCookie(token, time.Hour, false))
	}
	return r
}

// echoUser writes the username found on the context, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if u, ok := UserFromContext(r.Context()); ok {
		w.Write([]byte(u.Username))
		return
	}
	w.Write([]byte("anonymous"))
})

func TestRequireAuth(t *testing.T) {
	a, ts := setup(t)

	tests := []struct {
		name       string
		userID     string
		wantStatus int
		wantBody   string
	}{
		{"active user", "u1", http.StatusOK, "alice"},
		{"no cookie", "", http.StatusUnauthorized, ""},
		{"deactivated", "off", http.StatusUnauthorized, ""},
		{"deleted", "ghost", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.RequireAuth(echoUser).ServeHTTP(rec, requestWithToken(t, ts, tt.userID))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	a, ts := setup(t)

	rec := httptest.NewRecorder()
	a.OptionalAuth(echoUser).ServeHTTP(rec, requestWithToken(t, ts, ""))
	assert.Equal(t, "anonymous", rec.Body.String())

	rec = httptest.NewRecorder()
	a.OptionalAuth(echoUser).ServeHTTP(rec, requestWithToken(t, ts, "u1"))
	assert.Equal(t, "alice", rec.Body.String())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	rec = httptest.NewRecorder()
	a.OptionalAuth(echoUser).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	a, ts := setup(t)
	chain := a.RequireAuth(a.RequireAdmin(echoUser))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, requestWithToken(t, ts, "u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, requestWithToken(t, ts, "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "root", rec.Body.String())
}

func TestSessionCookies(t *testing.T) {
	c := SessionCookie("tok", 2*time.Hour, true)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, 7200, c.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	cleared := ClearSessionCookie(false)
	assert.Equal(t, CookieName, cleared.Name)
	assert.Less(t, cleared.MaxAge, 0)
}
