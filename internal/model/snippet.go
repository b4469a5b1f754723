package model

import (
	"fmt"
	"time"
)

// Visibility controls who can read a snippet.
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityTeam    Visibility = "TEAM"
	VisibilityPublic  Visibility = "PUBLIC"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityTeam, VisibilityPublic:
		return true
	}
	return false
}

// Status is the approval state of a snippet.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Snippet represents a saved code snippet.
//
// VersionMajor/VersionMinor always describe the newest row in
// snippet_versions for this snippet.
//
// Tags, IsFavorite, AuthorName and CategoryName are read-side fields
// populated by joins; they are not columns of the snippets table.
type Snippet struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Code              string     `json:"code"`
	Language          string     `json:"language"`
	CategoryID        *string    `json:"categoryId"`
	FolderID          *string    `json:"folderId"`
	TeamID            *string    `json:"teamId"`
	Visibility        Visibility `json:"visibility"`
	Status            Status     `json:"status"`
	RejectionReason   string     `json:"rejectionReason,omitempty"`
	HasExecutableCode bool       `json:"hasExecutableCode"`
	VersionMajor      int        `json:"versionMajor"`
	VersionMinor      int        `json:"versionMinor"`
	ViewCount         int64      `json:"viewCount"`
	Tags              []string   `json:"tags"`
	IsFavorite        bool       `json:"isFavorite"`
	AuthorName        string     `json:"authorName,omitempty"`
	CategoryName      string     `json:"categoryName,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Version renders the current version as "major.minor".
func (s *Snippet) Version() string {
	return fmt.Sprintf("%d.%d", s.VersionMajor, s.VersionMinor)
}

// SnippetVersion is a historical copy of a snippet's title and code.
type SnippetVersion struct {
	ID         string    `json:"id"`
	SnippetID  string    `json:"snippetId"`
	Major      int       `json:"major"`
	Minor      int       `json:"minor"`
	Title      string    `json:"title"`
	Code       string    `json:"code"`
	ChangeNote string    `json:"changeNote"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (v *SnippetVersion) Label() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}
