package model

import "time"

// Folder is a per-user container for snippets. Folders nest through
// ParentID; a nil ParentID is a root folder.
type Folder struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ParentID     *string   `json:"parentId"`
	Name         string    `json:"name"`
	SnippetCount int       `json:"snippetCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Category is an admin-managed, global classification.
type Category struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	Description  string    `json:"description"`
	SnippetCount int       `json:"snippetCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Tag names are stored lower-cased and are global across tenants.
type Tag struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SnippetCount int    `json:"snippetCount"`
}
