// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is a user's global role. Admins can moderate every tenant's content.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a registered account.
//
// Accounts are created either by username/password registration or by a
// GitHub OAuth login. GitHubID is nil for password-only accounts; the
// UNIQUE constraint on github_id still holds because SQLite allows many NULLs.
//
// Personal access tokens for publishing are write-only from the API's
// point of view: they are tagged json:"-" and exposed only as the
// HasGitHubToken / HasGiteaToken flags.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"role"`
	Active         bool       `json:"active"`
	GitHubID       *int64     `json:"githubId,omitempty"`
	AvatarURL      string     `json:"avatarUrl"`
	GitHubToken    string     `json:"-"`
	GiteaURL       string     `json:"giteaUrl"`
	GiteaToken     string     `json:"-"`
	HasGitHubToken bool       `json:"hasGithubToken"`
	HasGiteaToken  bool       `json:"hasGiteaToken"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
