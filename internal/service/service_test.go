package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/auth"
	"github.com/sakif/codevault/internal/executor"
	"github.com/sakif/codevault/internal/importer"
	"github.com/sakif/codevault/internal/mail"
	"github.com/sakif/codevault/internal/publish"
	"github.com/sakif/codevault/internal/repository/sqlite"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================
//
// WHY NO MOCK REPOSITORIES?
// The permission rules in this package depend on what the store's queries
// return (visibility filters, team membership joins, cascades). An
// in-memory SQLite database runs the real queries in a few milliseconds,
// so the tests exercise both layers together. Only the edges that leave
// the process (mail, Docker, GitHub) are faked.

type fakeLicense struct{ pro bool }

func (f *fakeLicense) IsPro() bool { return f.pro }

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) to(addr string) []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mail.Message
	for _, msg := range m.sent {
		if msg.To == addr {
			out = append(out, msg)
		}
	}
	return out
}

type fakeExecutor struct {
	got executor.ExecutionRequest
}

func (f *fakeExecutor) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	f.got = req
	return &executor.ExecutionResult{Stdout: "ok\n", Duration: time.Millisecond}, nil
}

type fakePublisher struct {
	target publish.Target
	file   publish.File
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, t publish.Target, file publish.File) (*publish.Result, error) {
	f.target, f.file = t, file
	if f.err != nil {
		return nil, f.err
	}
	return &publish.Result{Provider: t.Provider, URL: "https://example.com/" + file.Name}, nil
}

type testEnv struct {
	db        *sqlite.DB
	license   *fakeLicense
	mailer    *recordingMailer
	exec      *fakeExecutor
	publisher *fakePublisher

	audit      *AuditService
	settings   *SettingsService
	templates  *TemplateService
	auth       *AuthService
	snippets   *SnippetService
	approvals  *ApprovalService
	folders    *FolderService
	categories *CategoryService
	tags       *TagService
	teams      *TeamService
	users      *UserAdminService
	dashboard  *DashboardService

	// admin registered first and therefore holds the ADMIN role.
	admin, alice, bob Actor
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := discardLogger()
	tokens, err := auth.NewTokenService("test-secret-at-least-16", time.Hour)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceWithCost(bcrypt.MinCost)

	e := &testEnv{
		db:        db,
		license:   &fakeLicense{},
		mailer:    &recordingMailer{},
		exec:      &fakeExecutor{},
		publisher: &fakePublisher{},
	}
	e.audit = NewAuditService(db.Audit(), e.license, logger)
	e.settings = NewSettingsService(db.Settings(), e.audit, logger)
	e.templates = NewTemplateService(db.Templates(), mail.NewRenderer(), e.mailer, e.settings, e.license, e.audit, "http://vault.test", logger)
	e.auth = NewAuthService(db.Users(), tokens, passwords, e.settings, e.audit, e.templates, logger)
	e.snippets = NewSnippetService(SnippetDeps{
		Snippets:   db.Snippets(),
		Folders:    db.Folders(),
		Categories: db.Categories(),
		Teams:      db.Teams(),
		Users:      db.Users(),
		Tags:       db.Tags(),
		Settings:   e.settings,
		Audit:      e.audit,
		License:    e.license,
		Executor:   e.exec,
		Publisher:  e.publisher,
		Logger:     logger,
	})
	e.approvals = NewApprovalService(db.Snippets(), db.Users(), e.templates, e.audit, logger)
	e.folders = NewFolderService(db.Folders(), logger)
	e.categories = NewCategoryService(db.Categories(), e.audit, logger)
	e.tags = NewTagService(db.Tags(), e.audit, logger)
	e.teams = NewTeamService(db.Teams(), db.Users(), e.license, e.audit, logger)
	e.users = NewUserAdminService(db.Users(), passwords, e.audit, logger)
	e.dashboard = NewDashboardService(db.Stats(), e.audit, e.license)

	e.admin = e.register(t, "root")
	e.alice = e.register(t, "alice")
	e.bob = e.register(t, "bob")
	return e
}

func (e *testEnv) register(t *testing.T, name string) Actor {
	t.Helper()
	res, err := e.auth.Register(context.Background(), "127.0.0.1", RegisterInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "password-" + name,
	})
	require.NoError(t, err)
	return ActorFor(res.User, "127.0.0.1")
}

func (e *testEnv) newSnippet(t *testing.T, actor Actor, in SnippetInput) string {
	t.Helper()
	if in.Code == "" {
		in.Code = "print('hello')"
	}
	if in.Language == "" {
		in.Language = "python"
	}
	sn, err := e.snippets.Create(context.Background(), actor, in)
	require.NoError(t, err)
	return sn.ID
}

func (e *testEnv) setSettings(t *testing.T, patch SettingsPatch) {
	t.Helper()
	_, err := e.settings.Update(context.Background(), e.admin, patch)
	require.NoError(t, err)
}

func ptr[T any](v T) *T { return &v }

// assertAppError checks the sentinel and, when field is non-empty, the
// offending field.
func assertAppError(t *testing.T, err error, sentinel error, field string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	if field != "" {
		var appErr *apperror.AppError
		require.True(t, errors.As(err, &appErr), "want *AppError, got %T", err)
		assert.Equal(t, field, appErr.Field)
	}
}

// =========================================================================
// SHARED HELPERS
// =========================================================================

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -1, DefaultListLimit, 0},
		{50, 10, 50, 10},
		{1000, 0, MaxListLimit, 0},
	}
	for _, tt := range tests {
		got := clampPage(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, got.Limit)
		assert.Equal(t, tt.wantOffset, got.Offset)
	}
}

func TestRequireHelpers(t *testing.T) {
	assertAppError(t, requireUser(Actor{}), apperror.ErrUnauthorized, "")
	assertAppError(t, requireAdmin(Actor{UserID: "u"}), apperror.ErrForbidden, "")
	assert.NoError(t, requireAdmin(Actor{UserID: "u", Role: "ADMIN"}))
	assertAppError(t, requirePro(nil, "x"), apperror.ErrProRequired, "")
	assertAppError(t, requirePro(&fakeLicense{}, "x"), apperror.ErrProRequired, "")
	assert.NoError(t, requirePro(&fakeLicense{pro: true}, "x"))
}

func TestAuditRecord_NeverFails(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.Close())

	// The database is gone; Record must swallow the error.
	assert.NotPanics(t, func() {
		e.audit.Record(context.Background(), e.alice, AuditEntry{Action: ActionSnippetCreate, EntityID: "x"})
	})
	var nilAudit *AuditService
	nilAudit.Record(context.Background(), e.alice, AuditEntry{Action: ActionSnippetCreate})
}

func TestMigrationCheck(t *testing.T) {
	e := newTestEnv(t)
	e.license.pro = true

	runner := importer.NewRunner(importer.NewClient(nil), 0, discardLogger())
	svc := NewMigrationService(runner, e.snippets, e.license, e.audit, discardLogger())

	err := svc.Check(e.alice, &importer.Source{BaseURL: "http://legacy", Username: "u", Password: "p"})
	assertAppError(t, err, apperror.ErrForbidden, "")

	err = svc.Check(e.admin, &importer.Source{BaseURL: "not a url", Username: "u", Password: "p"})
	assertAppError(t, err, apperror.ErrValidation, "baseUrl")

	e.license.pro = false
	err = svc.Check(e.admin, &importer.Source{BaseURL: "http://legacy", Username: "u", Password: "p"})
	assertAppError(t, err, apperror.ErrProRequired, "")
}

func TestFromLegacy(t *testing.T) {
	ls := &importer.LegacySnippet{
		Title:      "Old",
		Content:    "echo hi",
		Language:   "sh",
		Tags:       []importer.Name{"Shell", "ops"},
		Category:   "Scripts",
		Visibility: "public",
	}
	got := fromLegacy(ls)
	assert.Equal(t, "echo hi", got.Code)
	assert.Equal(t, []string{"Shell", "ops"}, got.Tags)
	assert.Equal(t, "Scripts", got.Category)
}

func TestMigration_RunCountsFailuresAndAudits(t *testing.T) {
	e := newTestEnv(t)
	e.license.pro = true

	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/snippets":
			fmt.Fprint(w, `{"ids": [1, "2", 3]}`)
		case "/api/snippets/1":
			fmt.Fprint(w, `{"id": 1, "title": "Hello", "code": "print(1)", "language": "py", "tags": [{"name": "Legacy"}]}`)
		case "/api/snippets/2":
			fmt.Fprint(w, `{"id": "2", "title": "Empty", "code": ""}`)
		case "/api/snippets/3":
			fmt.Fprint(w, `{"id": 3, "title": "Deploy", "content": "echo deploy", "language": "sh", "category": "Scripts"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer legacy.Close()

	runner := importer.NewRunner(importer.NewClient(legacy.Client()), 0, discardLogger())
	svc := NewMigrationService(runner, e.snippets, e.license, e.audit, discardLogger())

	var events []importer.Event
	sum, err := svc.Run(context.Background(), e.admin,
		importer.Source{BaseURL: legacy.URL + "/", Username: "u", Password: "p"},
		func(ev importer.Event) { events = append(events, ev) })
	require.NoError(t, err)

	assert.Equal(t, importer.Summary{Total: 3, Processed: 3, Succeeded: 2, Failed: 1}, sum)
	require.NotEmpty(t, events)
	assert.Equal(t, importer.EventDone, events[len(events)-1].Type)

	page, err := e.snippets.List(context.Background(), e.admin, SnippetQuery{Mine: true})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	cat, err := e.db.Categories().GetByName(context.Background(), "Scripts")
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoryColor, cat.Color)

	e.license.pro = true
	logs, err := e.audit.List(context.Background(), e.admin, AuditQuery{Action: ActionSnippetMigration})
	require.NoError(t, err)
	require.Equal(t, 1, logs.Total)
	assert.Contains(t, string(logs.Items[0].Details), `"succeeded":2`)
}
