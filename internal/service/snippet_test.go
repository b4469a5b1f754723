package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/executor"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/publish"
)

// =========================================================================
// CREATE
// =========================================================================

func TestSnippetCreate_Normalizes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	sn, err := e.snippets.Create(ctx, e.alice, SnippetInput{
		Title:    "  Hello  ",
		Code:     "print('hi')",
		Language: "PY",
		Tags:     []string{" Go", "go", "#CLI", ""},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sn.ID)
	assert.Equal(t, "Hello", sn.Title)
	assert.Equal(t, "python", sn.Language)
	assert.ElementsMatch(t, []string{"go", "cli"}, sn.Tags)
	assert.Equal(t, model.VisibilityPrivate, sn.Visibility, "default visibility comes from settings")
	assert.Equal(t, model.StatusApproved, sn.Status)
	assert.Equal(t, "1.0", sn.Version())

	versions, err := e.snippets.ListVersions(ctx, e.alice, sn.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "initial version", versions[0].ChangeNote)
}

func TestSnippetCreate_UnknownLanguageIsPlaintext(t *testing.T) {
	e := newTestEnv(t)
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "x", Language: "brainfudge"})

	sn, err := e.snippets.Get(context.Background(), e.alice, id)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", sn.Language)
}

func TestSnippetCreate_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    SnippetInput
		field string
	}{
		{"empty title", SnippetInput{Title: "  ", Code: "x"}, "title"},
		{"long title", SnippetInput{Title: strings.Repeat("a", MaxTitleLength+1), Code: "x"}, "title"},
		{"no code", SnippetInput{Title: "t"}, "code"},
		{"bad visibility", SnippetInput{Title: "t", Code: "x", Visibility: "SECRET"}, "visibility"},
		{"team without id", SnippetInput{Title: "t", Code: "x", Visibility: model.VisibilityTeam}, "teamId"},
		{"unknown folder", SnippetInput{Title: "t", Code: "x", FolderID: ptr("nope")}, "folderId"},
		{"unknown category", SnippetInput{Title: "t", Code: "x", CategoryID: ptr("nope")}, "categoryId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.snippets.Create(ctx, e.alice, tt.in)
			assertAppError(t, err, apperror.ErrValidation, tt.field)
		})
	}

	tags := make([]string, MaxTags+1)
	for i := range tags {
		tags[i] = fmt.Sprintf("t%d", i)
	}
	_, err := e.snippets.Create(ctx, e.alice, SnippetInput{Title: "t", Code: "x", Tags: tags})
	assertAppError(t, err, apperror.ErrValidation, "tags")

	_, err = e.snippets.Create(ctx, Actor{}, SnippetInput{Title: "t", Code: "x"})
	assertAppError(t, err, apperror.ErrUnauthorized, "")
}

func TestSnippetCreate_MaxLengthFromSettings(t *testing.T) {
	e := newTestEnv(t)
	e.setSettings(t, SettingsPatch{MaxSnippetLength: ptr(100)})

	_, err := e.snippets.Create(context.Background(), e.alice, SnippetInput{Title: "t", Code: strings.Repeat("x", 101)})
	assertAppError(t, err, apperror.ErrValidation, "code")

	_, err = e.snippets.Create(context.Background(), e.alice, SnippetInput{Title: "t", Code: strings.Repeat("x", 100)})
	assert.NoError(t, err)
}

func TestSnippetCreate_RequireApproval(t *testing.T) {
	e := newTestEnv(t)
	e.setSettings(t, SettingsPatch{RequireApproval: ptr(true)})
	ctx := context.Background()

	userSnippet, err := e.snippets.Create(ctx, e.alice, SnippetInput{Title: "u", Code: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, userSnippet.Status)

	adminSnippet, err := e.snippets.Create(ctx, e.admin, SnippetInput{Title: "a", Code: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, adminSnippet.Status)
}

func TestSnippetCreate_ExecutableCode(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	code := "import os\nos.system('ls')"

	sn, err := e.snippets.Create(ctx, e.alice, SnippetInput{Title: "flagged", Code: code})
	require.NoError(t, err)
	assert.True(t, sn.HasExecutableCode, "flag is stored even when not blocking")

	e.setSettings(t, SettingsPatch{BlockExecutableCode: ptr(true)})
	_, err = e.snippets.Create(ctx, e.alice, SnippetInput{Title: "blocked", Code: code})
	assertAppError(t, err, apperror.ErrValidation, "code")

	_, err = e.snippets.Create(ctx, e.admin, SnippetInput{Title: "admin may", Code: code})
	assert.NoError(t, err)
}

// =========================================================================
// VISIBILITY
// =========================================================================

func TestSnippetGet_Visibility(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	private := e.newSnippet(t, e.alice, SnippetInput{Title: "private"})
	public := e.newSnippet(t, e.alice, SnippetInput{Title: "public", Visibility: model.VisibilityPublic})

	_, err := e.snippets.Get(ctx, e.bob, private)
	assertAppError(t, err, apperror.ErrNotFound, "")
	_, err = e.snippets.Get(ctx, Actor{}, private)
	assertAppError(t, err, apperror.ErrNotFound, "")

	_, err = e.snippets.Get(ctx, e.admin, private)
	assert.NoError(t, err, "admins read everything")

	sn, err := e.snippets.Get(ctx, Actor{}, public)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sn.ViewCount)

	sn, err = e.snippets.Get(ctx, e.alice, public)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sn.ViewCount, "owner views are not counted")
}

func TestSnippetGet_PendingPublicIsHidden(t *testing.T) {
	e := newTestEnv(t)
	e.setSettings(t, SettingsPatch{RequireApproval: ptr(true)})

	id := e.newSnippet(t, e.alice, SnippetInput{Title: "p", Visibility: model.VisibilityPublic})
	_, err := e.snippets.Get(context.Background(), e.bob, id)
	assertAppError(t, err, apperror.ErrNotFound, "")
}

func TestSnippetGet_TeamVisibility(t *testing.T) {
	e := newTestEnv(t)
	e.license.pro = true
	ctx := context.Background()

	team, err := e.teams.Create(ctx, e.alice, TeamInput{Name: "core"})
	require.NoError(t, err)
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "shared", Visibility: model.VisibilityTeam, TeamID: &team.ID})

	_, err = e.snippets.Get(ctx, e.bob, id)
	assertAppError(t, err, apperror.ErrNotFound, "")

	_, err = e.teams.AddMember(ctx, e.alice, team.ID, MemberInput{Username: "bob"})
	require.NoError(t, err)
	_, err = e.snippets.Get(ctx, e.bob, id)
	assert.NoError(t, err)

	_, err = e.snippets.Create(ctx, e.bob, SnippetInput{Title: "x", Code: "x", TeamID: ptr("other")})
	assertAppError(t, err, apperror.ErrValidation, "teamId")
}

// =========================================================================
// UPDATE AND VERSIONS
// =========================================================================

func TestSnippetUpdate_Versioning(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "v", Code: "a = 1"})

	sn, err := e.snippets.Update(ctx, e.alice, id, SnippetUpdate{Code: ptr("a = 2"), ChangeNote: "bump"})
	require.NoError(t, err)
	assert.Equal(t, "1.1", sn.Version())

	sn, err = e.snippets.Update(ctx, e.alice, id, SnippetUpdate{Title: ptr("v2"), MajorVersion: true})
	require.NoError(t, err)
	assert.Equal(t, "2.0", sn.Version())

	sn, err = e.snippets.Update(ctx, e.alice, id, SnippetUpdate{Description: ptr("only metadata"), Tags: &[]string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "2.0", sn.Version(), "metadata edits do not create versions")
	assert.Equal(t, []string{"x"}, sn.Tags)

	versions, err := e.snippets.ListVersions(ctx, e.alice, id)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "v2.0", versions[0].Label(), "newest first")
	assert.Equal(t, "v1.1", versions[1].Label())
	assert.Equal(t, "bump", versions[1].ChangeNote)
}

func TestSnippetUpdate_Permissions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "p", Visibility: model.VisibilityPublic})

	_, err := e.snippets.Update(ctx, e.bob, id, SnippetUpdate{Title: ptr("mine now")})
	assertAppError(t, err, apperror.ErrForbidden, "")

	err = e.snippets.Delete(ctx, e.bob, id)
	assertAppError(t, err, apperror.ErrForbidden, "")

	sn, err := e.snippets.Update(ctx, e.admin, id, SnippetUpdate{Title: ptr("moderated")})
	require.NoError(t, err)
	assert.Equal(t, "moderated", sn.Title)
	assert.Equal(t, e.alice.UserID, sn.UserID, "ownership is unchanged by admin edits")
}

func TestSnippetUpdate_UnchangedTeamIsNotRechecked(t *testing.T) {
	e := newTestEnv(t)
	e.license.pro = true
	ctx := context.Background()

	team, err := e.teams.Create(ctx, e.alice, TeamInput{Name: "core"})
	require.NoError(t, err)
	_, err = e.teams.AddMember(ctx, e.alice, team.ID, MemberInput{Username: "bob"})
	require.NoError(t, err)
	id := e.newSnippet(t, e.bob, SnippetInput{Title: "shared", Visibility: model.VisibilityTeam, TeamID: &team.ID})

	// bob leaves the team but still owns the snippet.
	require.NoError(t, e.teams.RemoveMember(ctx, e.bob, team.ID, e.bob.UserID))
	_, err = e.snippets.Update(ctx, e.bob, id, SnippetUpdate{Code: ptr("print('edited')")})
	require.NoError(t, err)

	// Moving it to a team he is not in is still refused.
	other, err := e.teams.Create(ctx, e.alice, TeamInput{Name: "other"})
	require.NoError(t, err)
	_, err = e.snippets.Update(ctx, e.bob, id, SnippetUpdate{TeamID: &other.ID})
	assertAppError(t, err, apperror.ErrValidation, "teamId")

	// A lapsed license blocks new team bindings, not edits of existing ones.
	e.license.pro = false
	_, err = e.snippets.Update(ctx, e.admin, id, SnippetUpdate{Title: ptr("renamed")})
	require.NoError(t, err)
	_, err = e.snippets.Update(ctx, e.admin, id, SnippetUpdate{TeamID: &other.ID})
	assertAppError(t, err, apperror.ErrProRequired, "")
}

func TestSnippetUpdate_BackToPendingUnderApproval(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "p"})
	e.setSettings(t, SettingsPatch{RequireApproval: ptr(true)})

	sn, err := e.snippets.Update(ctx, e.alice, id, SnippetUpdate{Code: ptr("changed")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, sn.Status)
}

func TestSnippetDiffAndRestore(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "d", Code: "line1\nold\n"})

	_, err := e.snippets.Update(ctx, e.alice, id, SnippetUpdate{Code: ptr("line1\nnew\n")})
	require.NoError(t, err)

	versions, err := e.snippets.ListVersions(ctx, e.alice, id)
	require.NoError(t, err)
	first := versions[len(versions)-1]
	require.Equal(t, "v1.0", first.Label())

	diff, err := e.snippets.Diff(ctx, e.alice, id, first.ID, CurrentVersion)
	require.NoError(t, err)
	assert.True(t, diff.Changed)
	assert.Equal(t, "v1.0", diff.From)
	assert.Contains(t, diff.Unified, "--- v1.0")
	assert.Contains(t, diff.Unified, "+++ current")
	assert.Contains(t, diff.Unified, "-old")
	assert.Contains(t, diff.Unified, "+new")

	same, err := e.snippets.Diff(ctx, e.alice, id, versions[0].ID, "")
	require.NoError(t, err)
	assert.False(t, same.Changed)

	_, err = e.snippets.Diff(ctx, e.alice, id, "missing", "")
	assertAppError(t, err, apperror.ErrNotFound, "")

	restored, err := e.snippets.Restore(ctx, e.alice, id, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "line1\nold\n", restored.Code)
	assert.Equal(t, "1.2", restored.Version())

	versions, err = e.snippets.ListVersions(ctx, e.alice, id)
	require.NoError(t, err)
	assert.Equal(t, "restored from v1.0", versions[0].ChangeNote)

	_, err = e.snippets.Restore(ctx, e.bob, id, first.ID)
	assertAppError(t, err, apperror.ErrNotFound, "")
}

func TestSnippetDelete_CleansUpTags(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "t", Tags: []string{"lonely"}})

	require.NoError(t, e.snippets.Delete(ctx, e.alice, id))

	_, err := e.snippets.Get(ctx, e.alice, id)
	assertAppError(t, err, apperror.ErrNotFound, "")
	tags, err := e.tags.List(ctx, Actor{}, false)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

// =========================================================================
// LIST AND SEARCH
// =========================================================================

func TestSnippetList_Filters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.newSnippet(t, e.alice, SnippetInput{Title: "Go server", Code: "func main() {}", Language: "go", Tags: []string{"web"}, Visibility: model.VisibilityPublic})
	e.newSnippet(t, e.alice, SnippetInput{Title: "Py script", Code: "print(1)", Tags: []string{"cli"}})
	e.newSnippet(t, e.bob, SnippetInput{Title: "Bob private", Code: "x"})

	page, err := e.snippets.List(ctx, e.alice, SnippetQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "alice sees her own snippets, not bob's private one")

	page, err = e.snippets.List(ctx, e.bob, SnippetQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "bob sees his own plus alice's public snippet")

	page, err = e.snippets.List(ctx, e.alice, SnippetQuery{Query: "SCRIPT"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Py script", page.Items[0].Title)

	page, err = e.snippets.List(ctx, e.alice, SnippetQuery{Language: "golang"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = e.snippets.List(ctx, e.alice, SnippetQuery{Tag: "WEB"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = e.snippets.List(ctx, e.admin, SnippetQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	_, err = e.snippets.List(ctx, e.alice, SnippetQuery{Sort: "random"})
	assertAppError(t, err, apperror.ErrValidation, "sort")

	_, err = e.snippets.List(ctx, Actor{}, SnippetQuery{Mine: true})
	assertAppError(t, err, apperror.ErrUnauthorized, "")
}

func TestSnippetList_Regex(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for i := range 5 {
		e.newSnippet(t, e.alice, SnippetInput{Title: fmt.Sprintf("handler %d", i), Code: fmt.Sprintf("func Handle%d() {}", i)})
	}
	e.newSnippet(t, e.alice, SnippetInput{Title: "other", Code: "const x = 1"})

	page, err := e.snippets.List(ctx, e.alice, SnippetQuery{Query: `^func\s+handle[0-9]`, Regex: true, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total, "regex is case-insensitive and multi-snippet")
	assert.Len(t, page.Items, 2)

	_, err = e.snippets.List(ctx, e.alice, SnippetQuery{Query: "(unclosed", Regex: true})
	assertAppError(t, err, apperror.ErrValidation, "q")
}

func TestSnippetList_StatusFilterIsOwnForUsers(t *testing.T) {
	e := newTestEnv(t)
	e.setSettings(t, SettingsPatch{RequireApproval: ptr(true)})
	ctx := context.Background()
	e.newSnippet(t, e.alice, SnippetInput{Title: "a"})
	e.newSnippet(t, e.bob, SnippetInput{Title: "b"})

	page, err := e.snippets.List(ctx, e.alice, SnippetQuery{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = e.snippets.List(ctx, e.admin, SnippetQuery{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = e.snippets.List(ctx, e.alice, SnippetQuery{Status: "LOST"})
	assertAppError(t, err, apperror.ErrValidation, "status")
}

func TestSnippetToggleFavorite(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "fav", Visibility: model.VisibilityPublic})

	on, err := e.snippets.ToggleFavorite(ctx, e.bob, id)
	require.NoError(t, err)
	assert.True(t, on)

	page, err := e.snippets.List(ctx, e.bob, SnippetQuery{Favorites: true})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.True(t, page.Items[0].IsFavorite)

	off, err := e.snippets.ToggleFavorite(ctx, e.bob, id)
	require.NoError(t, err)
	assert.False(t, off)
}

// =========================================================================
// BULK, EXPORT, IMPORT
// =========================================================================

func TestSnippetBulk(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a1 := e.newSnippet(t, e.alice, SnippetInput{Title: "a1"})
	a2 := e.newSnippet(t, e.alice, SnippetInput{Title: "a2", Tags: []string{"keep"}})
	b1 := e.newSnippet(t, e.bob, SnippetInput{Title: "b1"})

	_, err := e.snippets.Bulk(ctx, e.alice, BulkRequest{Action: BulkDelete, IDs: []string{a1}})
	assertAppError(t, err, apperror.ErrProRequired, "")

	e.license.pro = true
	_, err = e.snippets.Bulk(ctx, e.alice, BulkRequest{Action: "explode", IDs: []string{a1}})
	assertAppError(t, err, apperror.ErrValidation, "action")

	res, err := e.snippets.Bulk(ctx, e.alice, BulkRequest{Action: BulkTag, IDs: []string{a1, a2, b1}, Tags: []string{"New"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a1, a2}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, b1, res.Failed[0].ID)

	sn, err := e.snippets.Get(ctx, e.alice, a2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep", "new"}, sn.Tags)

	folder, err := e.folders.Create(ctx, e.alice, FolderInput{Name: ptr("stash")})
	require.NoError(t, err)
	res, err = e.snippets.Bulk(ctx, e.alice, BulkRequest{Action: BulkMove, IDs: []string{a1}, FolderID: &folder.ID})
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)
	page, err := e.snippets.List(ctx, e.alice, SnippetQuery{FolderID: folder.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	res, err = e.snippets.Bulk(ctx, e.alice, BulkRequest{Action: BulkVisibility, IDs: []string{a1, a2}, Visibility: "public"})
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)

	res, err = e.snippets.Bulk(ctx, e.admin, BulkRequest{Action: BulkDelete, IDs: []string{a1, b1, a1}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a1, b1}, res.Succeeded, "duplicates are skipped")
}

func TestSnippetExportImport(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	cat, err := e.categories.Create(ctx, e.admin, CategoryInput{Name: "Algorithms", Color: "#112233"})
	require.NoError(t, err)
	e.newSnippet(t, e.alice, SnippetInput{Title: "first", Tags: []string{"sort"}, CategoryID: &cat.ID})
	e.newSnippet(t, e.alice, SnippetInput{Title: "second", Visibility: model.VisibilityPublic})

	exported, err := e.snippets.Export(ctx, e.alice)
	require.NoError(t, err)
	require.Len(t, exported, 2)
	assert.Equal(t, "first", exported[0].Title, "oldest first")
	assert.Equal(t, "Algorithms", exported[0].Category)
	assert.Equal(t, []string{"sort"}, exported[0].Tags)

	_, err = e.snippets.Import(ctx, e.bob, exported)
	assertAppError(t, err, apperror.ErrProRequired, "")

	e.license.pro = true
	exported = append(exported, ExportedSnippet{Title: "broken"})
	exported = append(exported, ExportedSnippet{Title: "new cat", Code: "x", Category: "Imported"})
	res, err := e.snippets.Import(ctx, e.bob, exported)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].ID, "broken")

	page, err := e.snippets.List(ctx, e.bob, SnippetQuery{Mine: true, CategoryID: cat.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "category matched by name")

	imported, err := e.db.Categories().GetByName(ctx, "Imported")
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoryColor, imported.Color)
}

// =========================================================================
// RUN AND PUBLISH
// =========================================================================

func TestSnippetExecute(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	res, err := e.snippets.Execute(ctx, e.alice, executor.ExecutionRequest{Language: "py", Code: "print('ok')"})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", res.Stdout)
	assert.Equal(t, "python", e.exec.got.Language)

	_, err = e.snippets.Execute(ctx, e.alice, executor.ExecutionRequest{Language: "css", Code: "a{}"})
	assertAppError(t, err, apperror.ErrValidation, "language")

	_, err = e.snippets.Execute(ctx, Actor{}, executor.ExecutionRequest{Language: "python", Code: "1"})
	assertAppError(t, err, apperror.ErrUnauthorized, "")

	id := e.newSnippet(t, e.alice, SnippetInput{Title: "r", Code: "puts 1", Language: "ruby"})
	_, err = e.snippets.Run(ctx, e.alice, id)
	require.NoError(t, err)
	assert.Equal(t, "ruby", e.exec.got.Language)
	assert.Equal(t, "puts 1", e.exec.got.Code)

	disabled := NewSnippetService(SnippetDeps{Settings: e.settings, Logger: discardLogger()})
	assert.False(t, disabled.RunEnabled())
	_, err = disabled.Execute(ctx, e.alice, executor.ExecutionRequest{Language: "python", Code: "1"})
	assertAppError(t, err, apperror.ErrForbidden, "")
}

func TestSnippetPublish(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.newSnippet(t, e.alice, SnippetInput{Title: "Quick Sort!", Code: "def qs(): pass", Visibility: model.VisibilityPublic})

	_, err := e.snippets.Publish(ctx, e.alice, id, PublishRequest{Provider: publish.GitHub})
	assertAppError(t, err, apperror.ErrValidation, "provider")

	_, err = e.auth.UpdateIntegrations(ctx, e.alice, IntegrationsInput{GitHubToken: ptr("ghp_secret")})
	require.NoError(t, err)

	res, err := e.snippets.Publish(ctx, e.alice, id, PublishRequest{Provider: "GitHub"})
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", e.publisher.target.Token)
	assert.Equal(t, "quick-sort.py", e.publisher.file.Name)
	assert.True(t, e.publisher.file.Public)
	assert.Contains(t, res.URL, "quick-sort.py")

	_, err = e.snippets.Publish(ctx, e.alice, id, PublishRequest{Provider: "bitbucket"})
	assertAppError(t, err, apperror.ErrValidation, "provider")

	e.publisher.err = fmt.Errorf("%w: 401 bad credentials", publish.ErrRemote)
	_, err = e.snippets.Publish(ctx, e.alice, id, PublishRequest{Provider: publish.GitHub})
	assertAppError(t, err, apperror.ErrValidation, "provider")
}
