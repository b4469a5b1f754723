package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/codevault/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives every test a fresh database that disappears when the
// connection closes. No disk I/O, no cleanup, no cross-test leakage.
//
// t.Helper() makes failures point at the caller's line instead of here.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         model.RoleUser,
		Active:       true,
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestSnippet creates an approved snippet with its first version.
func createTestSnippet(t *testing.T, db *DB, owner *model.User, title string, vis model.Visibility, tags ...string) *model.Snippet {
	t.Helper()
	s := &model.Snippet{
		UserID:       owner.ID,
		Title:        title,
		Code:         "print('" + title + "')",
		Language:     "python",
		Visibility:   vis,
		Status:       model.StatusApproved,
		VersionMajor: 1,
		Tags:         tags,
	}
	v := &model.SnippetVersion{Major: 1, Title: s.Title, Code: s.Code, CreatedBy: owner.ID}
	if err := db.Snippets().Create(context.Background(), s, v); err != nil {
		t.Fatalf("failed to create test snippet: %v", err)
	}
	return s
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "%abc%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\tmp`, `%c:\\tmp%`},
	}
	for _, tt := range tests {
		if got := likePattern(tt.in); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "?, ?, ?" {
		t.Errorf("placeholders(3) = %q", got)
	}
	if got := placeholders(0); got != "" {
		t.Errorf("placeholders(0) = %q, want empty", got)
	}
}
