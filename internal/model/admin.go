package model

import (
	"encoding/json"
	"time"
)

// AuditLog is one append-only record of an action. UserID is nil for
// actions with no authenticated caller (failed logins, system jobs).
type AuditLog struct {
	ID         string          `json:"id"`
	UserID     *string         `json:"userId"`
	Username   string          `json:"username,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Details    json.RawMessage `json:"details,omitempty"`
	IPAddress  string          `json:"ipAddress"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// EmailTemplate is a named subject/body pair rendered with Go templates.
// IsDefault is true when the template has not been customized.
type EmailTemplate struct {
	Key         string    `json:"key"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"isDefault"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SystemSettings is the singleton row of instance-wide switches.
type SystemSettings struct {
	SiteName            string     `json:"siteName"`
	AllowRegistration   bool       `json:"allowRegistration"`
	RequireApproval     bool       `json:"requireApproval"`
	BlockExecutableCode bool       `json:"blockExecutableCode"`
	MaxSnippetLength    int        `json:"maxSnippetLength"`
	DefaultVisibility   Visibility `json:"defaultVisibility"`
}

// DefaultSettings are used until an admin saves the settings once.
func DefaultSettings() SystemSettings {
	return SystemSettings{
		SiteName:            "CodeVault",
		AllowRegistration:   true,
		RequireApproval:     false,
		BlockExecutableCode: false,
		MaxSnippetLength:    100000,
		DefaultVisibility:   VisibilityPrivate,
	}
}

// DashboardStats is the admin analytics payload.
type DashboardStats struct {
	Totals      Totals         `json:"totals"`
	Languages   []NamedCount   `json:"languages"`
	TopTags     []NamedCount   `json:"topTags"`
	Daily       []DailyCount   `json:"daily"`
	RecentAudit []AuditLog     `json:"recentAudit"`
	License     map[string]any `json:"license,omitempty"`
}

type Totals struct {
	Users    int `json:"users"`
	Snippets int `json:"snippets"`
	Pending  int `json:"pending"`
	Versions int `json:"versions"`
	Teams    int `json:"teams"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type DailyCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int    `json:"count"`
}
