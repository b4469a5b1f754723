package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
)

// CurrentVersion names the live snippet in Diff.
const CurrentVersion = "current"

// Diff is a unified diff between two versions of a snippet's code.
type Diff struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Unified string `json:"unified"`
	Changed bool   `json:"changed"`
}

// ListVersions returns the snippet's history, newest first.
func (s *SnippetService) ListVersions(ctx context.Context, actor Actor, snippetID string) ([]model.SnippetVersion, error) {
	sn, err := s.load(ctx, actor, snippetID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, sn.ID)
}

func (s *SnippetService) GetVersion(ctx context.Context, actor Actor, snippetID, versionID string) (*model.SnippetVersion, error) {
	sn, err := s.load(ctx, actor, snippetID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetVersion(ctx, sn.ID, versionID)
}

// Diff compares version from with version to. Either side may be
// CurrentVersion, meaning the snippet as it is now.
func (s *SnippetService) Diff(ctx context.Context, actor Actor, snippetID, from, to string) (*Diff, error) {
	sn, err := s.load(ctx, actor, snippetID)
	if err != nil {
		return nil, err
	}
	if from == "" {
		return nil, apperror.ValidationFailed("from", "a version to compare from is required")
	}
	if to == "" {
		to = CurrentVersion
	}

	fromLabel, fromCode, err := s.side(ctx, sn, from)
	if err != nil {
		return nil, err
	}
	toLabel, toCode, err := s.side(ctx, sn, to)
	if err != nil {
		return nil, err
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(fromCode),
		B:        difflib.SplitLines(toCode),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("diffing versions: %w", err)
	}
	return &Diff{From: fromLabel, To: toLabel, Unified: text, Changed: text != ""}, nil
}

func (s *SnippetService) side(ctx context.Context, sn *model.Snippet, ref string) (label, code string, err error) {
	if ref == CurrentVersion {
		return CurrentVersion, sn.Code, nil
	}
	v, err := s.repo.GetVersion(ctx, sn.ID, ref)
	if err != nil {
		return "", "", err
	}
	return v.Label(), v.Code, nil
}

// Restore copies a historical title and code back onto the snippet. The
// restore is itself a new minor version, so history is never rewritten.
func (s *SnippetService) Restore(ctx context.Context, actor Actor, snippetID, versionID string) (*model.Snippet, error) {
	sn, err := s.loadForEdit(ctx, actor, snippetID)
	if err != nil {
		return nil, err
	}
	old, err := s.repo.GetVersion(ctx, sn.ID, versionID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	sn.Title, sn.Code = old.Title, old.Code
	if err := s.scan(actor, sn, settings); err != nil {
		return nil, err
	}
	sn.VersionMajor, sn.VersionMinor = nextVersion(sn, false)
	version := &model.SnippetVersion{
		Major:      sn.VersionMajor,
		Minor:      sn.VersionMinor,
		Title:      sn.Title,
		Code:       sn.Code,
		ChangeNote: "restored from " + old.Label(),
		CreatedBy:  actor.UserID,
	}
	if settings.RequireApproval && !actor.IsAdmin() {
		sn.Status = model.StatusPending
		sn.RejectionReason = ""
	}
	if err := s.repo.Update(ctx, sn, version); err != nil {
		return nil, fmt.Errorf("restoring snippet: %w", err)
	}

	s.logger.Info("snippet restored",
		slog.String("id", sn.ID),
		slog.String("from", old.Label()),
		slog.String("version", version.Label()),
	)
	s.audit.Record(ctx, actor, AuditEntry{
		Action:   ActionSnippetRestore,
		EntityID: sn.ID,
		Details:  map[string]any{"from": old.Label(), "version": version.Label()},
	})
	return s.repo.GetByID(ctx, sn.ID, actor.UserID)
}
