package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_RecordsStatusAndFlushes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapped writer must still be a Flusher")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "path=/brew")
	assert.Contains(t, out, "bytes=15")
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(2)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"), "third request inside the burst window")
	assert.True(t, rl.Allow("2.2.2.2"), "other clients have their own bucket")

	// 30s later one token has refilled (2 per minute)
	fixed = fixed.Add(30 * time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(5)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	rl.Allow("1.1.1.1")
	fixed = fixed.Add(time.Hour)
	rl.Allow("2.2.2.2")

	assert.Len(t, rl.clients, 1)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.4:1234"
	assert.Equal(t, "192.168.1.4", ClientIP(r))

	r.RemoteAddr = "192.168.1.4"
	assert.Equal(t, "192.168.1.4", ClientIP(r))
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.1.2.3/8", " 192.168.1.7 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "192.168.1.7/32", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())

	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestRealIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		trusted    bool
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{"no proxies configured ignores headers", false, "203.0.113.9:5000", "1.2.3.4", "", "203.0.113.9"},
		{"untrusted peer ignores headers", true, "203.0.113.9:5000", "1.2.3.4", "5.6.7.8", "203.0.113.9"},
		{"trusted proxy forwards client", true, "10.0.0.2:5000", "198.51.100.4", "", "198.51.100.4"},
		{"spoofed leftmost entry is skipped", true, "10.0.0.2:5000", "1.1.1.1, 198.51.100.4", "", "198.51.100.4"},
		{"trusted hops are skipped", true, "10.0.0.2:5000", "198.51.100.4, 10.0.0.9", "", "198.51.100.4"},
		{"x-real-ip fallback", true, "10.0.0.2:5000", "", "198.51.100.5", "198.51.100.5"},
		{"garbage header keeps peer", true, "10.0.0.2:5000", "not-an-ip", "", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list []netip.Prefix
			if tt.trusted {
				list = trusted
			}
			var got string
			h := RealIP(list)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			assert.Equal(t, tt.want, got)
		})
	}
}
