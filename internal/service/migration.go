package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/importer"
	"github.com/sakif/codevault/internal/model"
)

// MigrationService pulls every snippet from a legacy server into the
// caller's account.
type MigrationService struct {
	runner   *importer.Runner
	snippets *SnippetService
	license  LicenseChecker
	audit    *AuditService
	logger   *slog.Logger
}

func NewMigrationService(runner *importer.Runner, snippets *SnippetService, license LicenseChecker, audit *AuditService, logger *slog.Logger) *MigrationService {
	return &MigrationService{runner: runner, snippets: snippets, license: license, audit: audit, logger: logger}
}

// Check validates a migration request before any response is streamed,
// so the handler can still answer with a plain JSON error.
func (s *MigrationService) Check(actor Actor, src *importer.Source) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := requirePro(s.license, "legacy migration"); err != nil {
		return err
	}
	src.BaseURL = strings.TrimRight(strings.TrimSpace(src.BaseURL), "/")
	return validationError(validation.ValidateStruct(src,
		validation.Field(&src.BaseURL, validation.Required, is.URL),
		validation.Field(&src.Username, validation.Required),
		validation.Field(&src.Password, validation.Required),
	))
}

// Run imports every legacy id, reporting progress through emit. The final
// counts are audited even when ctx was cancelled half way.
func (s *MigrationService) Run(ctx context.Context, actor Actor, src importer.Source, emit importer.EmitFunc) (importer.Summary, error) {
	if err := s.Check(actor, &src); err != nil {
		return importer.Summary{}, err
	}

	s.logger.Info("legacy migration started", slog.String("source", src.BaseURL), slog.String("by", actor.UserID))
	save := func(ctx context.Context, ls *importer.LegacySnippet) error {
		_, err := s.snippets.ImportOne(ctx, actor, fromLegacy(ls))
		return err
	}
	sum, err := s.runner.Run(ctx, src, save, emit)

	details := map[string]any{
		"source":    src.BaseURL,
		"total":     sum.Total,
		"processed": sum.Processed,
		"succeeded": sum.Succeeded,
		"failed":    sum.Failed,
	}
	if err != nil {
		details["error"] = err.Error()
		details["cancelled"] = errors.Is(err, context.Canceled)
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionSnippetMigration, EntityType: "snippet", Details: details})
	s.logger.Info("legacy migration finished",
		slog.Int("total", sum.Total),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed),
	)

	if err != nil && !errors.Is(err, context.Canceled) && sum.Total == 0 {
		return sum, apperror.ValidationFailed("baseUrl", "cannot read the legacy server: "+err.Error())
	}
	return sum, err
}

func fromLegacy(ls *importer.LegacySnippet) ExportedSnippet {
	return ExportedSnippet{
		Title:       ls.Title,
		Description: ls.Description,
		Code:        ls.Body(),
		Language:    ls.Language,
		Tags:        ls.TagNames(),
		Category:    string(ls.Category),
		Visibility:  model.Visibility(ls.Visibility),
	}
}
