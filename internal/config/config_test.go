package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("JWT_SECRET", "0123456789abcdef")

	c, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "data/codevault.db", c.DBPath)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.Equal(t, 100*time.Millisecond, c.ImportDelay)
	assert.Equal(t, 10, c.LoginRatePerMinute)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORSOrigins)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", c.GitHubCallbackURL)
	assert.Equal(t, "http://localhost:8080", c.PublicURL)
	assert.False(t, c.GitHubEnabled())
	assert.False(t, c.SMTPEnabled())
	assert.False(t, c.ExecutorEnabled)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("JWT_SECRET", "0123456789abcdef")
	v.Set("PORT", "9090")
	v.Set("SESSION_TTL", "2h")
	v.Set("CORS_ORIGINS", "https://a.example, https://b.example ,")
	v.Set("LOG_LEVEL", "DEBUG")
	v.Set("SMTP_HOST", "smtp.example.com")
	v.Set("SMTP_FROM", "vault@example.com")
	v.Set("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7")

	c, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, 2*time.Hour, c.SessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.SMTPEnabled())
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.7"}, c.TrustedProxies)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]any
	}{
		{"missing secret", map[string]any{}},
		{"short secret", map[string]any{"JWT_SECRET": "short"}},
		{"bad port", map[string]any{"JWT_SECRET": "0123456789abcdef", "PORT": 70000}},
		{"bad log level", map[string]any{"JWT_SECRET": "0123456789abcdef", "LOG_LEVEL": "loud"}},
		{"bad trusted proxy", map[string]any{"JWT_SECRET": "0123456789abcdef", "TRUSTED_PROXIES": "10.0.0.0/8,proxy.local"}},
		{"bad smtp from", map[string]any{"JWT_SECRET": "0123456789abcdef", "SMTP_HOST": "mx", "SMTP_FROM": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := fromViper(v)
			assert.Error(t, err)
		})
	}
}
