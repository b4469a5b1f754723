package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	SiteName            *string           `json:"siteName"`
	AllowRegistration   *bool             `json:"allowRegistration"`
	RequireApproval     *bool             `json:"requireApproval"`
	BlockExecutableCode *bool             `json:"blockExecutableCode"`
	MaxSnippetLength    *int              `json:"maxSnippetLength"`
	DefaultVisibility   *model.Visibility `json:"defaultVisibility"`
}

// PublicSettings is the subset anonymous visitors may read.
type PublicSettings struct {
	SiteName          string `json:"siteName"`
	AllowRegistration bool   `json:"allowRegistration"`
}

// SettingsService serves the instance-wide settings from memory. Every
// snippet write reads them, so the row is loaded once and replaced after
// each successful save.
type SettingsService struct {
	repo   repository.SettingsRepository
	audit  *AuditService
	logger *slog.Logger

	mu     sync.RWMutex
	cached *model.SystemSettings
}

func NewSettingsService(repo repository.SettingsRepository, audit *AuditService, logger *slog.Logger) *SettingsService {
	return &SettingsService{repo: repo, audit: audit, logger: logger}
}

// Current returns the settings, loading them on first use.
func (s *SettingsService) Current(ctx context.Context) (model.SystemSettings, error) {
	s.mu.RLock()
	if s.cached != nil {
		out := *s.cached
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		loaded, err := s.repo.Get(ctx)
		if err != nil {
			return model.SystemSettings{}, err
		}
		s.cached = loaded
	}
	return *s.cached, nil
}

// Get is the admin read of the full settings.
func (s *SettingsService) Get(ctx context.Context, actor Actor) (model.SystemSettings, error) {
	if err := requireAdmin(actor); err != nil {
		return model.SystemSettings{}, err
	}
	return s.Current(ctx)
}

// Public returns the fields shown on the login page.
func (s *SettingsService) Public(ctx context.Context) (PublicSettings, error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return PublicSettings{}, err
	}
	return PublicSettings{SiteName: cur.SiteName, AllowRegistration: cur.AllowRegistration}, nil
}

// Update applies patch, validates the merged result and persists it.
func (s *SettingsService) Update(ctx context.Context, actor Actor, patch SettingsPatch) (model.SystemSettings, error) {
	if err := requireAdmin(actor); err != nil {
		return model.SystemSettings{}, err
	}

	next, err := s.Current(ctx)
	if err != nil {
		return model.SystemSettings{}, err
	}
	changed := map[string]any{}
	if patch.SiteName != nil {
		next.SiteName = strings.TrimSpace(*patch.SiteName)
		changed["siteName"] = next.SiteName
	}
	if patch.AllowRegistration != nil {
		next.AllowRegistration = *patch.AllowRegistration
		changed["allowRegistration"] = next.AllowRegistration
	}
	if patch.RequireApproval != nil {
		next.RequireApproval = *patch.RequireApproval
		changed["requireApproval"] = next.RequireApproval
	}
	if patch.BlockExecutableCode != nil {
		next.BlockExecutableCode = *patch.BlockExecutableCode
		changed["blockExecutableCode"] = next.BlockExecutableCode
	}
	if patch.MaxSnippetLength != nil {
		next.MaxSnippetLength = *patch.MaxSnippetLength
		changed["maxSnippetLength"] = next.MaxSnippetLength
	}
	if patch.DefaultVisibility != nil {
		next.DefaultVisibility = model.Visibility(strings.ToUpper(string(*patch.DefaultVisibility)))
		changed["defaultVisibility"] = next.DefaultVisibility
	}

	err = validation.ValidateStruct(&next,
		validation.Field(&next.SiteName, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&next.MaxSnippetLength, validation.Required, validation.Min(100), validation.Max(1_000_000)),
		validation.Field(&next.DefaultVisibility, validation.Required,
			validation.In(model.VisibilityPrivate, model.VisibilityTeam, model.VisibilityPublic)),
	)
	if err != nil {
		return model.SystemSettings{}, validationError(err)
	}

	s.mu.Lock()
	if err := s.repo.Save(ctx, &next); err != nil {
		s.mu.Unlock()
		return model.SystemSettings{}, err
	}
	saved := next
	s.cached = &saved
	s.mu.Unlock()

	s.logger.Info("system settings updated", slog.String("by", actor.UserID))
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionSettingsUpdate, EntityID: "system", Details: changed})
	return next, nil
}
