// Package repository declares the storage interfaces the service layer
// depends on. The only implementation lives in repository/sqlite.
package repository

import (
	"context"
	"time"

	"github.com/sakif/codevault/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Sort orders accepted by SnippetFilter.Sort.
const (
	SortUpdated = "updated"
	SortCreated = "created"
	SortTitle   = "title"
	SortViews   = "views"
)

// SnippetFilter narrows a snippet listing.
//
// Visibility is always applied from the viewer's point of view: a
// non-admin viewer sees their own snippets, approved PUBLIC snippets and
// approved TEAM snippets of teams they belong to. An empty ViewerID is an
// anonymous reader.
//
// Limit <= 0 means "no limit"; the service layer clamps page sizes.
type SnippetFilter struct {
	ViewerID      string
	ViewerIsAdmin bool

	Query         string // case-insensitive substring
	Language      string
	CategoryID    string
	Tag           string
	FolderID      string
	RootFolder    bool // only snippets without a folder
	TeamID        string
	OwnerID       string
	Status        model.Status
	FavoritesOnly bool

	Sort   string
	Limit  int
	Offset int
}

type SnippetRepository interface {
	// Create inserts the snippet, its tags and its first version atomically.
	Create(ctx context.Context, snippet *model.Snippet, version *model.SnippetVersion) error
	GetByID(ctx context.Context, id, viewerID string) (*model.Snippet, error)
	List(ctx context.Context, f SnippetFilter) ([]model.Snippet, int, error)
	// Update saves the snippet and replaces its tags. version may be nil
	// when the edit did not touch title or code.
	Update(ctx context.Context, snippet *model.Snippet, version *model.SnippetVersion) error
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status model.Status, reason string) error
	IncrementViews(ctx context.Context, id string) error
	ToggleFavorite(ctx context.Context, userID, snippetID string) (bool, error)
	ListVersions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error)
	GetVersion(ctx context.Context, snippetID, versionID string) (*model.SnippetVersion, error)
}

type UserFilter struct {
	Query  string
	Role   model.Role
	Limit  int
	Offset int
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id, hash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f UserFilter) ([]model.User, int, error)
	Count(ctx context.Context) (int, error)
	CountActiveAdmins(ctx context.Context) (int, error)
}

type FolderRepository interface {
	Create(ctx context.Context, folder *model.Folder) error
	GetByID(ctx context.Context, id string) (*model.Folder, error)
	ListByUser(ctx context.Context, userID string) ([]model.Folder, error)
	Update(ctx context.Context, folder *model.Folder) error
	Delete(ctx context.Context, id string) error
}

type CategoryRepository interface {
	Create(ctx context.Context, c *model.Category) error
	GetByID(ctx context.Context, id string) (*model.Category, error)
	GetByName(ctx context.Context, name string) (*model.Category, error)
	List(ctx context.Context) ([]model.Category, error)
	Update(ctx context.Context, c *model.Category) error
	Delete(ctx context.Context, id string) error
}

type TagRepository interface {
	// List returns tags with usage counts. A non-empty ownerID counts only
	// that user's snippets and omits tags they never used.
	List(ctx context.Context, ownerID string) ([]model.Tag, error)
	GetByID(ctx context.Context, id string) (*model.Tag, error)
	Delete(ctx context.Context, id string) error
	DeleteOrphans(ctx context.Context) (int64, error)
}

type TeamRepository interface {
	// Create inserts the team and its owner membership atomically.
	Create(ctx context.Context, team *model.Team) error
	GetByID(ctx context.Context, id string) (*model.Team, error)
	// List returns teams userID belongs to; empty userID lists all teams.
	List(ctx context.Context, userID string) ([]model.Team, error)
	Update(ctx context.Context, team *model.Team) error
	Delete(ctx context.Context, id string) error
	GetMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error)
	AddMember(ctx context.Context, m *model.TeamMember) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	CountOwners(ctx context.Context, teamID string) (int, error)
}

type AuditFilter struct {
	Action     string
	UserID     string
	EntityType string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

type AuditRepository interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, f AuditFilter) ([]model.AuditLog, int, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type TemplateRepository interface {
	List(ctx context.Context) ([]model.EmailTemplate, error)
	Get(ctx context.Context, key string) (*model.EmailTemplate, error)
	Upsert(ctx context.Context, t *model.EmailTemplate) error
	Delete(ctx context.Context, key string) error
}

type SettingsRepository interface {
	// Get returns model.DefaultSettings when nothing was saved yet.
	Get(ctx context.Context) (*model.SystemSettings, error)
	Save(ctx context.Context, s *model.SystemSettings) error
}

// StatsRepository backs the admin dashboard. Each method is a single
// aggregate query so the service can run them concurrently.
type StatsRepository interface {
	Totals(ctx context.Context) (*model.Totals, error)
	LanguageCounts(ctx context.Context) ([]model.NamedCount, error)
	TopTags(ctx context.Context, limit int) ([]model.NamedCount, error)
	DailyCreated(ctx context.Context, since time.Time) ([]model.DailyCount, error)
}
