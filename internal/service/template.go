package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/mail"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// TemplateInput is the editable part of an email template.
type TemplateInput struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Preview is a rendered template.
type Preview struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// TemplateService manages email templates and sends notification mail.
// Stored rows override the embedded defaults key by key; deleting a row
// restores the default.
type TemplateService struct {
	repo      repository.TemplateRepository
	renderer  *mail.Renderer
	mailer    mail.Mailer
	settings  *SettingsService
	license   LicenseChecker
	audit     *AuditService
	publicURL string
	logger    *slog.Logger
}

func NewTemplateService(
	repo repository.TemplateRepository,
	renderer *mail.Renderer,
	mailer mail.Mailer,
	settings *SettingsService,
	license LicenseChecker,
	audit *AuditService,
	publicURL string,
	logger *slog.Logger,
) *TemplateService {
	return &TemplateService{
		repo:      repo,
		renderer:  renderer,
		mailer:    mailer,
		settings:  settings,
		license:   license,
		audit:     audit,
		publicURL: publicURL,
		logger:    logger,
	}
}

// List returns every known template, stored overrides first applied.
func (s *TemplateService) List(ctx context.Context, actor Actor) ([]model.EmailTemplate, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]model.EmailTemplate, len(stored))
	for _, t := range stored {
		byKey[t.Key] = t
	}

	out := mail.Defaults()
	for i, d := range out {
		if t, ok := byKey[d.Key]; ok {
			t.Description = d.Description
			t.IsDefault = false
			out[i] = t
		}
	}
	return out, nil
}

// Get returns the effective template for key.
func (s *TemplateService) Get(ctx context.Context, actor Actor, key string) (*model.EmailTemplate, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.effective(ctx, key)
}

func (s *TemplateService) effective(ctx context.Context, key string) (*model.EmailTemplate, error) {
	def, ok := mail.Default(key)
	if !ok {
		return nil, apperror.NotFound("email template", key)
	}
	t, err := s.repo.Get(ctx, key)
	if errors.Is(err, apperror.ErrNotFound) {
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	t.Description = def.Description
	t.IsDefault = false
	return t, nil
}

// Upsert stores a customized template. Editing templates is a Pro feature.
func (s *TemplateService) Upsert(ctx context.Context, actor Actor, key string, in TemplateInput) (*model.EmailTemplate, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := requirePro(s.license, "email template editing"); err != nil {
		return nil, err
	}
	def, ok := mail.Default(key)
	if !ok {
		return nil, apperror.NotFound("email template", key)
	}

	in.Subject = strings.TrimSpace(in.Subject)
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Subject, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&in.Body, validation.Required, validation.Length(1, 50_000)),
	)
	if err != nil {
		return nil, validationError(err)
	}

	t := &model.EmailTemplate{Key: key, Subject: in.Subject, Body: in.Body, Description: def.Description}
	if err := s.renderer.Validate(*t); err != nil {
		return nil, apperror.ValidationFailed("body", "invalid template syntax: "+err.Error())
	}
	if err := s.repo.Upsert(ctx, t); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor, AuditEntry{Action: ActionTemplateUpdate, EntityType: "template", EntityID: key})
	return t, nil
}

// Reset deletes the override for key, restoring the default.
func (s *TemplateService) Reset(ctx context.Context, actor Actor, key string) (*model.EmailTemplate, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := requirePro(s.license, "email template editing"); err != nil {
		return nil, err
	}
	def, ok := mail.Default(key)
	if !ok {
		return nil, apperror.NotFound("email template", key)
	}
	if err := s.repo.Delete(ctx, key); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionTemplateReset, EntityType: "template", EntityID: key})
	return &def, nil
}

// Preview renders key with its sample data. When in is non-nil the unsaved
// draft is rendered instead of the stored template.
func (s *TemplateService) Preview(ctx context.Context, actor Actor, key string, in *TemplateInput) (*Preview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	t, err := s.effective(ctx, key)
	if err != nil {
		return nil, err
	}
	if in != nil {
		t.Subject, t.Body = in.Subject, in.Body
	}

	subject, body, err := s.renderer.Render(*t, s.withSite(ctx, mail.SampleData(key)))
	if err != nil {
		return nil, apperror.ValidationFailed("body", err.Error())
	}
	return &Preview{Subject: subject, HTML: body}, nil
}

// SendTest mails the "test" template to the given address. Unlike Notify,
// delivery errors are returned so the admin sees them.
func (s *TemplateService) SendTest(ctx context.Context, actor Actor, to string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := validation.Validate(to, validation.Required, is.EmailFormat); err != nil {
		return apperror.ValidationFailed("to", "to: "+err.Error())
	}
	return s.send(ctx, mail.KeyTest, to, map[string]any{})
}

// Notify sends key to the given address and only logs failures. Business
// operations call it after they succeeded; a broken mail server must not
// turn a registration into an error.
func (s *TemplateService) Notify(ctx context.Context, key, to string, data map[string]any) {
	if s == nil || to == "" {
		return
	}
	if err := s.send(context.WithoutCancel(ctx), key, to, data); err != nil {
		s.logger.Warn("notification email failed",
			slog.String("template", key),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TemplateService) send(ctx context.Context, key, to string, data map[string]any) error {
	t, err := s.effective(ctx, key)
	if err != nil {
		return err
	}
	subject, body, err := s.renderer.Render(*t, s.withSite(ctx, data))
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, mail.Message{To: to, Subject: subject, HTML: body})
}

// withSite adds SiteName and URL unless the caller set them.
func (s *TemplateService) withSite(ctx context.Context, data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	if _, ok := out["SiteName"]; !ok {
		name := model.DefaultSettings().SiteName
		if cur, err := s.settings.Current(ctx); err == nil {
			name = cur.SiteName
		}
		out["SiteName"] = name
	}
	if _, ok := out["URL"]; !ok {
		out["URL"] = s.publicURL
	}
	return out
}
