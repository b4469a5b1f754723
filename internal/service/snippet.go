package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/detector"
	"github.com/sakif/codevault/internal/executor"
	"github.com/sakif/codevault/internal/language"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// Snippet limits. The code limit is a system setting, not a constant.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxTags              = 20
	MaxTagLength         = 50
)

// SnippetDeps lists SnippetService's collaborators. Executor and Publisher
// may be nil, which disables running and publishing.
type SnippetDeps struct {
	Snippets   repository.SnippetRepository
	Folders    repository.FolderRepository
	Categories repository.CategoryRepository
	Teams      repository.TeamRepository
	Users      repository.UserRepository
	Tags       repository.TagRepository
	Settings   *SettingsService
	Audit      *AuditService
	License    LicenseChecker
	Detector   *detector.Detector
	Languages  *language.Registry
	Executor   executor.Executor
	Publisher  Publisher
	Logger     *slog.Logger
}

// SnippetService handles business logic for code snippets: CRUD, search,
// versions, bulk operations, import/export, running and publishing.
type SnippetService struct {
	repo       repository.SnippetRepository
	folders    repository.FolderRepository
	categories repository.CategoryRepository
	teams      repository.TeamRepository
	users      repository.UserRepository
	tags       repository.TagRepository
	settings   *SettingsService
	audit      *AuditService
	license    LicenseChecker
	detector   *detector.Detector
	langs      *language.Registry
	exec       executor.Executor
	publisher  Publisher
	logger     *slog.Logger
}

func NewSnippetService(d SnippetDeps) *SnippetService {
	if d.Detector == nil {
		d.Detector = detector.Default()
	}
	if d.Languages == nil {
		d.Languages = language.Default()
	}
	return &SnippetService{
		repo:       d.Snippets,
		folders:    d.Folders,
		categories: d.Categories,
		teams:      d.Teams,
		users:      d.Users,
		tags:       d.Tags,
		settings:   d.Settings,
		audit:      d.Audit,
		license:    d.License,
		detector:   d.Detector,
		langs:      d.Languages,
		exec:       d.Executor,
		publisher:  d.Publisher,
		logger:     d.Logger,
	}
}

// SnippetInput is the payload for Create.
type SnippetInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Code        string           `json:"code"`
	Language    string           `json:"language"`
	CategoryID  *string          `json:"categoryId"`
	FolderID    *string          `json:"folderId"`
	TeamID      *string          `json:"teamId"`
	Visibility  model.Visibility `json:"visibility"`
	Tags        []string         `json:"tags"`
}

// SnippetUpdate is a partial update. For the three reference ids a pointer
// to "" clears the reference.
type SnippetUpdate struct {
	Title        *string           `json:"title"`
	Description  *string           `json:"description"`
	Code         *string           `json:"code"`
	Language     *string           `json:"language"`
	CategoryID   *string           `json:"categoryId"`
	FolderID     *string           `json:"folderId"`
	TeamID       *string           `json:"teamId"`
	Visibility   *model.Visibility `json:"visibility"`
	Tags         *[]string         `json:"tags"`
	MajorVersion bool              `json:"majorVersion"`
	ChangeNote   string            `json:"changeNote"`
}

// SnippetQuery is a listing request.
type SnippetQuery struct {
	Query      string
	Regex      bool
	Language   string
	CategoryID string
	Tag        string
	FolderID   string // "root" lists snippets without a folder
	TeamID     string
	Status     model.Status
	Favorites  bool
	Mine       bool
	Sort       string
	Limit      int
	Offset     int
}

// normalizeTags trims, lower-cases and de-duplicates, keeping first-seen
// order.
func normalizeTags(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.TrimPrefix(t, "#")
		if t == "" || seen[t] {
			continue
		}
		if len([]rune(t)) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags", fmt.Sprintf("tag %q is longer than %d characters", t, MaxTagLength))
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > MaxTags {
		return nil, apperror.ValidationFailed("tags", fmt.Sprintf("a snippet can have at most %d tags", MaxTags))
	}
	return out, nil
}

func emptyToNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func (s *SnippetService) validateContent(sn *model.Snippet, settings model.SystemSettings) error {
	return validationError(validation.ValidateStruct(sn,
		validation.Field(&sn.Title, validation.Required, validation.RuneLength(1, MaxTitleLength)),
		validation.Field(&sn.Description, validation.RuneLength(0, MaxDescriptionLength)),
		validation.Field(&sn.Code, validation.Required, validation.RuneLength(1, settings.MaxSnippetLength)),
		validation.Field(&sn.Visibility, validation.Required,
			validation.In(model.VisibilityPrivate, model.VisibilityTeam, model.VisibilityPublic)),
	))
}

// checkRefs verifies folder, category and team references. ownerID is the
// snippet's owner: folders are personal, so an admin editing someone else's
// snippet can only pick that owner's folders.
// prevTeam is the team the snippet was bound to before the write (nil on
// create). Pro and membership are only checked when the team changes, so an
// owner who left a team, or an installation whose license lapsed, can still
// edit the snippet.
func (s *SnippetService) checkRefs(ctx context.Context, actor Actor, ownerID string, sn *model.Snippet, prevTeam *string) error {
	if sn.FolderID != nil {
		f, err := s.folders.GetByID(ctx, *sn.FolderID)
		if err != nil || f.UserID != ownerID {
			return apperror.ValidationFailed("folderId", "folder not found")
		}
	}
	if sn.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, *sn.CategoryID); err != nil {
			return apperror.ValidationFailed("categoryId", "category not found")
		}
	}
	if sn.TeamID != nil && !sameRef(sn.TeamID, prevTeam) {
		if err := requirePro(s.license, "teams"); err != nil {
			return err
		}
		if !actor.IsAdmin() {
			if _, err := s.teams.GetMember(ctx, *sn.TeamID, actor.UserID); err != nil {
				return apperror.ValidationFailed("teamId", "you are not a member of this team")
			}
		}
	}
	if sn.Visibility == model.VisibilityTeam && sn.TeamID == nil {
		return apperror.ValidationFailed("teamId", "TEAM visibility requires a team")
	}
	return nil
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// scan runs the executable-code detector and applies the blocking setting.
func (s *SnippetService) scan(actor Actor, sn *model.Snippet, settings model.SystemSettings) error {
	matches := s.detector.Scan(sn.Code)
	sn.HasExecutableCode = len(matches) > 0
	if sn.HasExecutableCode && settings.BlockExecutableCode && !actor.IsAdmin() {
		return apperror.ValidationFailed("code",
			"code looks executable and is blocked on this server (matched: "+strings.Join(matches, ", ")+")")
	}
	return nil
}

func initialStatus(actor Actor, settings model.SystemSettings) model.Status {
	if settings.RequireApproval && !actor.IsAdmin() {
		return model.StatusPending
	}
	return model.StatusApproved
}

// Create validates and saves a new snippet together with its v1.0 version.
func (s *SnippetService) Create(ctx context.Context, actor Actor, in SnippetInput) (*model.Snippet, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	vis := model.Visibility(strings.ToUpper(string(in.Visibility)))
	if vis == "" {
		vis = settings.DefaultVisibility
	}

	sn := &model.Snippet{
		UserID:       actor.UserID,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Code:         in.Code,
		Language:     s.langs.Normalize(in.Language),
		CategoryID:   emptyToNil(in.CategoryID),
		FolderID:     emptyToNil(in.FolderID),
		TeamID:       emptyToNil(in.TeamID),
		Visibility:   vis,
		Tags:         tags,
		Status:       initialStatus(actor, settings),
		VersionMajor: 1,
	}
	if err := s.validateContent(sn, settings); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, actor, actor.UserID, sn, nil); err != nil {
		return nil, err
	}
	if err := s.scan(actor, sn, settings); err != nil {
		return nil, err
	}

	version := &model.SnippetVersion{
		Major:      1,
		Minor:      0,
		Title:      sn.Title,
		Code:       sn.Code,
		ChangeNote: "initial version",
		CreatedBy:  actor.UserID,
	}
	if err := s.repo.Create(ctx, sn, version); err != nil {
		s.logger.Error("failed to create snippet", slog.String("title", sn.Title), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", sn.ID),
		slog.String("language", sn.Language),
		slog.String("status", string(sn.Status)),
	)
	s.audit.Record(ctx, actor, AuditEntry{
		Action:   ActionSnippetCreate,
		EntityID: sn.ID,
		Details:  map[string]any{"title": sn.Title, "status": sn.Status, "executable": sn.HasExecutableCode},
	})

	return s.repo.GetByID(ctx, sn.ID, actor.UserID)
}

// canRead applies the visibility rules.
func (s *SnippetService) canRead(ctx context.Context, actor Actor, sn *model.Snippet) bool {
	switch {
	case actor.IsAdmin():
		return true
	case !actor.Anonymous() && sn.UserID == actor.UserID:
		return true
	case sn.Status != model.StatusApproved:
		return false
	case sn.Visibility == model.VisibilityPublic:
		return true
	case sn.Visibility == model.VisibilityTeam && sn.TeamID != nil && !actor.Anonymous():
		_, err := s.teams.GetMember(ctx, *sn.TeamID, actor.UserID)
		return err == nil
	}
	return false
}

func canEdit(actor Actor, sn *model.Snippet) bool {
	return actor.IsAdmin() || (!actor.Anonymous() && sn.UserID == actor.UserID)
}

// load fetches a snippet the actor may read. Unreadable snippets are
// reported as not found so their existence does not leak.
func (s *SnippetService) load(ctx context.Context, actor Actor, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	sn, err := s.repo.GetByID(ctx, id, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !s.canRead(ctx, actor, sn) {
		return nil, apperror.NotFound("snippet", id)
	}
	return sn, nil
}

// loadForEdit is load plus the owner-or-admin rule.
func (s *SnippetService) loadForEdit(ctx context.Context, actor Actor, id string) (*model.Snippet, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	sn, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, sn) {
		return nil, apperror.Forbidden("only the owner or an admin can modify this snippet")
	}
	return sn, nil
}

// Get returns a readable snippet and counts a view for anyone but the owner.
func (s *SnippetService) Get(ctx context.Context, actor Actor, id string) (*model.Snippet, error) {
	sn, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Anonymous() || sn.UserID != actor.UserID {
		if err := s.repo.IncrementViews(ctx, sn.ID); err != nil {
			s.logger.Warn("failed to count snippet view", slog.String("id", sn.ID), slog.String("error", err.Error()))
		} else {
			sn.ViewCount++
		}
	}
	return sn, nil
}

// nextVersion computes the version written by an edit of title or code.
func nextVersion(sn *model.Snippet, major bool) (int, int) {
	if major {
		return sn.VersionMajor + 1, 0
	}
	return sn.VersionMajor, sn.VersionMinor + 1
}

// Update applies a partial edit. A version row is written only when the
// title or the code changed.
func (s *SnippetService) Update(ctx context.Context, actor Actor, id string, upd SnippetUpdate) (*model.Snippet, error) {
	sn, err := s.loadForEdit(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	oldTitle, oldCode, oldTeam := sn.Title, sn.Code, sn.TeamID

	if upd.Title != nil {
		sn.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		sn.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Code != nil {
		sn.Code = *upd.Code
	}
	if upd.Language != nil {
		sn.Language = s.langs.Normalize(*upd.Language)
	}
	if upd.CategoryID != nil {
		sn.CategoryID = emptyToNil(upd.CategoryID)
	}
	if upd.FolderID != nil {
		sn.FolderID = emptyToNil(upd.FolderID)
	}
	if upd.TeamID != nil {
		sn.TeamID = emptyToNil(upd.TeamID)
	}
	if upd.Visibility != nil {
		sn.Visibility = model.Visibility(strings.ToUpper(string(*upd.Visibility)))
	}
	if upd.Tags != nil {
		if sn.Tags, err = normalizeTags(*upd.Tags); err != nil {
			return nil, err
		}
	}

	if err := s.validateContent(sn, settings); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, actor, sn.UserID, sn, oldTeam); err != nil {
		return nil, err
	}
	if err := s.scan(actor, sn, settings); err != nil {
		return nil, err
	}

	var version *model.SnippetVersion
	if sn.Title != oldTitle || sn.Code != oldCode {
		sn.VersionMajor, sn.VersionMinor = nextVersion(sn, upd.MajorVersion)
		version = &model.SnippetVersion{
			Major:      sn.VersionMajor,
			Minor:      sn.VersionMinor,
			Title:      sn.Title,
			Code:       sn.Code,
			ChangeNote: strings.TrimSpace(upd.ChangeNote),
			CreatedBy:  actor.UserID,
		}
	}
	if settings.RequireApproval && !actor.IsAdmin() {
		sn.Status = model.StatusPending
		sn.RejectionReason = ""
	}

	if err := s.repo.Update(ctx, sn, version); err != nil {
		s.logger.Error("failed to update snippet", slog.String("id", sn.ID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	details := map[string]any{"status": sn.Status}
	if version != nil {
		details["version"] = version.Label()
	}
	s.logger.Info("snippet updated", slog.String("id", sn.ID), slog.String("version", sn.Version()))
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionSnippetUpdate, EntityID: sn.ID, Details: details})

	return s.repo.GetByID(ctx, sn.ID, actor.UserID)
}

// Delete removes a snippet with its versions, tag links and favorites, then
// drops tags nothing uses any more.
func (s *SnippetService) Delete(ctx context.Context, actor Actor, id string) error {
	sn, err := s.loadForEdit(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sn.ID); err != nil {
		return err
	}
	s.cleanupTags(ctx)

	s.logger.Info("snippet deleted", slog.String("id", sn.ID))
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionSnippetDelete, EntityID: sn.ID, Details: map[string]any{"title": sn.Title}})
	return nil
}

func (s *SnippetService) cleanupTags(ctx context.Context) {
	if s.tags == nil {
		return
	}
	if _, err := s.tags.DeleteOrphans(ctx); err != nil {
		s.logger.Warn("orphan tag cleanup failed", slog.String("error", err.Error()))
	}
}

var validSorts = []any{repository.SortUpdated, repository.SortCreated, repository.SortTitle, repository.SortViews}

// List searches the snippets visible to actor.
//
// With Regex set, Query is a case-insensitive regular expression matched
// against title, description, code and tags. SQLite has no regexp
// function, so the visible candidates are filtered here and paginated
// afterwards.
func (s *SnippetService) List(ctx context.Context, actor Actor, q SnippetQuery) (*Page[model.Snippet], error) {
	page := clampPage(q.Limit, q.Offset)

	f := repository.SnippetFilter{
		ViewerID:      actor.UserID,
		ViewerIsAdmin: actor.IsAdmin(),
		Language:      q.Language,
		CategoryID:    q.CategoryID,
		Tag:           strings.ToLower(strings.TrimSpace(q.Tag)),
		TeamID:        q.TeamID,
		Sort:          q.Sort,
		Limit:         page.Limit,
		Offset:        page.Offset,
	}
	if f.Language != "" {
		f.Language = s.langs.Normalize(f.Language)
	}
	if f.Sort == "" {
		f.Sort = repository.SortUpdated
	}
	if err := validation.Validate(f.Sort, validation.In(validSorts...)); err != nil {
		return nil, apperror.ValidationFailed("sort", "sort must be one of updated, created, title, views")
	}

	switch q.FolderID {
	case "":
	case "root":
		f.RootFolder = true
	default:
		f.FolderID = q.FolderID
	}

	if q.Mine || q.Favorites {
		if err := requireUser(actor); err != nil {
			return nil, err
		}
	}
	if q.Mine {
		f.OwnerID = actor.UserID
	}
	f.FavoritesOnly = q.Favorites

	if q.Status != "" {
		st := model.Status(strings.ToUpper(string(q.Status)))
		if !st.Valid() {
			return nil, apperror.ValidationFailed("status", "status must be PENDING, APPROVED or REJECTED")
		}
		if !actor.IsAdmin() {
			// Non-admins may only filter their own snippets by status.
			if err := requireUser(actor); err != nil {
				return nil, err
			}
			f.OwnerID = actor.UserID
		}
		f.Status = st
	}

	if !q.Regex {
		f.Query = strings.TrimSpace(q.Query)
		items, total, err := s.repo.List(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("listing snippets: %w", err)
		}
		return &Page[model.Snippet]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
	}

	re, err := compileSearch(q.Query)
	if err != nil {
		return nil, err
	}
	f.Limit, f.Offset = 0, 0
	candidates, _, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	matched := candidates[:0]
	for _, sn := range candidates {
		if matchSnippet(re, &sn) {
			matched = append(matched, sn)
		}
	}
	total := len(matched)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)
	items := make([]model.Snippet, end-start)
	copy(items, matched[start:end])
	return &Page[model.Snippet]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func compileSearch(q string) (*regexp.Regexp, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperror.ValidationFailed("q", "a regular expression is required")
	}
	if len(q) > 500 {
		return nil, apperror.ValidationFailed("q", "regular expression is too long")
	}
	re, err := regexp.Compile("(?i)" + q)
	if err != nil {
		return nil, apperror.ValidationFailed("q", "invalid regular expression: "+err.Error())
	}
	return re, nil
}

func matchSnippet(re *regexp.Regexp, sn *model.Snippet) bool {
	if re.MatchString(sn.Title) || re.MatchString(sn.Description) || re.MatchString(sn.Code) {
		return true
	}
	for _, t := range sn.Tags {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// ToggleFavorite flips the favorite flag and reports the new state.
func (s *SnippetService) ToggleFavorite(ctx context.Context, actor Actor, id string) (bool, error) {
	if err := requireUser(actor); err != nil {
		return false, err
	}
	sn, err := s.load(ctx, actor, id)
	if err != nil {
		return false, err
	}
	return s.repo.ToggleFavorite(ctx, actor.UserID, sn.ID)
}

// isNotFound is used where a missing row is an expected outcome.
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
