// Package config loads server settings from the environment.
//
// LOAD ORDER:
//  1. An optional .env file in the working directory (godotenv). Values
//     already present in the process environment win.
//  2. Environment variables, read through viper with AutomaticEnv.
//  3. The defaults registered below.
//
// Load validates the result so a misconfigured server fails at startup
// instead of on the first request that touches the bad value.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full set of server settings.
type Config struct {
	Port         int
	DBPath       string
	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool
	CORSOrigins  []string
	StaticDir    string
	LicenseFile  string
	PublicURL    string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	ExecutorEnabled    bool
	ImportDelay        time.Duration
	LoginRatePerMinute int
	// TrustedProxies lists reverse proxies (IPs or CIDRs) allowed to set
	// X-Forwarded-For.
	TrustedProxies []string

	LogLevel  string
	LogFormat string
}

// GitHubEnabled reports whether GitHub OAuth login is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SMTPEnabled reports whether outgoing mail should go through SMTP.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "data/codevault.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STATIC_DIR", "")
	v.SetDefault("LICENSE_FILE", "data/license.key")
	v.SetDefault("PUBLIC_URL", "")
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_CALLBACK_URL", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "codevault@localhost")
	v.SetDefault("EXECUTOR_ENABLED", false)
	v.SetDefault("IMPORT_DELAY", "100ms")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 10)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads .env (if present) and the environment into a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	v := viper.New()
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	c := &Config{
		Port:               v.GetInt("PORT"),
		DBPath:             v.GetString("DB_PATH"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		SessionTTL:         v.GetDuration("SESSION_TTL"),
		CookieSecure:       v.GetBool("COOKIE_SECURE"),
		CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),
		StaticDir:          v.GetString("STATIC_DIR"),
		LicenseFile:        v.GetString("LICENSE_FILE"),
		PublicURL:          strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		GitHubClientID:     v.GetString("GITHUB_CLIENT_ID"),
		GitHubClientSecret: v.GetString("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  v.GetString("GITHUB_CALLBACK_URL"),
		SMTPHost:           v.GetString("SMTP_HOST"),
		SMTPPort:           v.GetInt("SMTP_PORT"),
		SMTPUsername:       v.GetString("SMTP_USERNAME"),
		SMTPPassword:       v.GetString("SMTP_PASSWORD"),
		SMTPFrom:           v.GetString("SMTP_FROM"),
		ExecutorEnabled:    v.GetBool("EXECUTOR_ENABLED"),
		ImportDelay:        v.GetDuration("IMPORT_DELAY"),
		LoginRatePerMinute: v.GetInt("LOGIN_RATE_PER_MINUTE"),
		TrustedProxies:     splitList(v.GetString("TRUSTED_PROXIES")),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:          strings.ToLower(v.GetString("LOG_FORMAT")),
	}

	if c.PublicURL == "" {
		c.PublicURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	if c.GitHubCallbackURL == "" {
		c.GitHubCallbackURL = c.PublicURL + "/auth/github/callback"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.JWTSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.SessionTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.ImportDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.LoginRatePerMinute, validation.Required, validation.Min(1)),
		validation.Field(&c.TrustedProxies, validation.Each(validation.By(ipOrCIDR))),
		validation.Field(&c.SMTPPort, validation.When(c.SMTPEnabled(), validation.Required, validation.Max(65535))),
		validation.Field(&c.SMTPFrom, validation.When(c.SMTPEnabled(), validation.Required, is.EmailFormat)),
		validation.Field(&c.PublicURL, is.URL),
		validation.Field(&c.GitHubCallbackURL, validation.When(c.GitHubEnabled(), is.URL)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("text", "json")),
	)
}

func ipOrCIDR(value any) error {
	s, _ := value.(string)
	if _, err := netip.ParsePrefix(s); err == nil {
		return nil
	}
	if _, err := netip.ParseAddr(s); err == nil {
		return nil
	}
	return errors.New("must be an IP address or CIDR")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
