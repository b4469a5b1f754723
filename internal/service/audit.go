package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// Audit actions. The part before the dot is the entity type.
const (
	ActionUserRegister       = "user.register"
	ActionUserLogin          = "user.login"
	ActionUserLoginFailed    = "user.login_failed"
	ActionUserPasswordChange = "user.password_change"
	ActionUserCreate         = "user.create"
	ActionUserUpdate         = "user.update"
	ActionUserDelete         = "user.delete"

	ActionSnippetCreate    = "snippet.create"
	ActionSnippetUpdate    = "snippet.update"
	ActionSnippetDelete    = "snippet.delete"
	ActionSnippetRestore   = "snippet.restore"
	ActionSnippetPublish   = "snippet.publish"
	ActionSnippetApprove   = "snippet.approve"
	ActionSnippetReject    = "snippet.reject"
	ActionSnippetBulk      = "snippet.bulk"
	ActionSnippetImport    = "snippet.import"
	ActionSnippetMigration = "snippet.migration"

	ActionCategoryCreate = "category.create"
	ActionCategoryUpdate = "category.update"
	ActionCategoryDelete = "category.delete"
	ActionTagDelete      = "tag.delete"

	ActionTeamCreate       = "team.create"
	ActionTeamUpdate       = "team.update"
	ActionTeamDelete       = "team.delete"
	ActionTeamMemberAdd    = "team.member_add"
	ActionTeamMemberRemove = "team.member_remove"

	ActionSettingsUpdate = "settings.update"
	ActionTemplateUpdate = "template.update"
	ActionTemplateReset  = "template.reset"
	ActionAuditPurge     = "audit.purge"
)

// AuditEntry is what a service records. The entity type is derived from
// the action unless set explicitly.
type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]any
}

// AuditQuery filters the admin audit listing.
type AuditQuery struct {
	Action     string
	UserID     string
	EntityType string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// AuditService writes and reads the append-only audit log.
type AuditService struct {
	repo    repository.AuditRepository
	license LicenseChecker
	logger  *slog.Logger
}

func NewAuditService(repo repository.AuditRepository, license LicenseChecker, logger *slog.Logger) *AuditService {
	return &AuditService{repo: repo, license: license, logger: logger}
}

// Record appends an entry. It never returns an error: an audit failure is
// logged and the caller's operation carries on. The write is detached from
// ctx cancellation so an entry is not lost when the client disconnects
// right after the action succeeded.
func (s *AuditService) Record(ctx context.Context, actor Actor, e AuditEntry) {
	if s == nil {
		return
	}
	entry := &model.AuditLog{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		IPAddress:  actor.IP,
	}
	if entry.EntityType == "" {
		entry.EntityType = entityOf(e.Action)
	}
	if actor.UserID != "" {
		uid := actor.UserID
		entry.UserID = &uid
	}
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			s.logger.Error("failed to encode audit details", slog.String("action", e.Action), slog.String("error", err.Error()))
		} else {
			entry.Details = raw
		}
	}

	if err := s.repo.Insert(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to write audit log",
			slog.String("action", e.Action),
			slog.String("entity_id", e.EntityID),
			slog.String("error", err.Error()),
		)
	}
}

func entityOf(action string) string {
	entity, _, _ := strings.Cut(action, ".")
	return entity
}

// List returns audit entries newest first. Admin only, Pro only.
func (s *AuditService) List(ctx context.Context, actor Actor, q AuditQuery) (*Page[model.AuditLog], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := requirePro(s.license, "audit log"); err != nil {
		return nil, err
	}

	page := clampPage(q.Limit, q.Offset)
	items, total, err := s.repo.List(ctx, repository.AuditFilter{
		Action:     q.Action,
		UserID:     q.UserID,
		EntityType: q.EntityType,
		Since:      q.Since,
		Until:      q.Until,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &Page[model.AuditLog]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// Recent returns the newest n entries without license gating; the admin
// dashboard shows them to every admin.
func (s *AuditService) Recent(ctx context.Context, n int) ([]model.AuditLog, error) {
	items, _, err := s.repo.List(ctx, repository.AuditFilter{Limit: n})
	return items, err
}

// Purge deletes entries older than olderThan. The purge itself is recorded
// afterwards, so the log never ends up silently empty.
func (s *AuditService) Purge(ctx context.Context, actor Actor, olderThan time.Duration) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	if olderThan < 24*time.Hour {
		return 0, apperror.ValidationFailed("olderThan", "audit entries younger than one day cannot be purged")
	}

	before := time.Now().Add(-olderThan)
	n, err := s.repo.Purge(ctx, before)
	if err != nil {
		return 0, err
	}

	s.logger.Info("audit log purged", slog.Int64("deleted", n), slog.Time("before", before))
	s.Record(ctx, actor, AuditEntry{
		Action:  ActionAuditPurge,
		Details: map[string]any{"deleted": n, "before": before.UTC().Format(time.RFC3339)},
	})
	return n, nil
}
