package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// DefaultCategoryColor is used for categories created by an import.
const DefaultCategoryColor = "#6B7280"

// MaxImportItems caps a single Import request.
const MaxImportItems = 1000

// ExportedSnippet is the portable form used by Export and Import. Category
// travels by name because ids differ between instances.
type ExportedSnippet struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Code        string           `json:"code"`
	Language    string           `json:"language"`
	Tags        []string         `json:"tags"`
	Category    string           `json:"category,omitempty"`
	Visibility  model.Visibility `json:"visibility"`
	Version     string           `json:"version,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Failed   []BulkFailure `json:"failed"`
}

// Export returns every snippet the caller owns, oldest first.
func (s *SnippetService) Export(ctx context.Context, actor Actor) ([]ExportedSnippet, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	items, _, err := s.repo.List(ctx, repository.SnippetFilter{
		ViewerID: actor.UserID,
		OwnerID:  actor.UserID,
		Sort:     repository.SortCreated,
	})
	if err != nil {
		return nil, fmt.Errorf("exporting snippets: %w", err)
	}

	out := make([]ExportedSnippet, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		sn := items[i]
		created := sn.CreatedAt
		out = append(out, ExportedSnippet{
			Title:       sn.Title,
			Description: sn.Description,
			Code:        sn.Code,
			Language:    sn.Language,
			Tags:        sn.Tags,
			Category:    sn.CategoryName,
			Visibility:  sn.Visibility,
			Version:     sn.Version(),
			CreatedAt:   &created,
		})
	}
	return out, nil
}

// Import creates one snippet per item. Items are independent: a failing
// item is reported and the rest still go in.
func (s *SnippetService) Import(ctx context.Context, actor Actor, items []ExportedSnippet) (*ImportResult, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if err := requirePro(s.license, "import"); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperror.ValidationFailed("items", "nothing to import")
	}
	if len(items) > MaxImportItems {
		return nil, apperror.ValidationFailed("items", fmt.Sprintf("at most %d snippets per import", MaxImportItems))
	}

	res := &ImportResult{Failed: []BulkFailure{}}
	for i, item := range items {
		if _, err := s.ImportOne(ctx, actor, item); err != nil {
			res.Failed = append(res.Failed, BulkFailure{ID: fmt.Sprintf("#%d %s", i+1, item.Title), Error: bulkMessage(err)})
			continue
		}
		res.Imported++
	}

	s.logger.Info("snippets imported", slog.Int("imported", res.Imported), slog.Int("failed", len(res.Failed)))
	s.audit.Record(ctx, actor, AuditEntry{
		Action:     ActionSnippetImport,
		EntityType: "snippet",
		Details:    map[string]any{"imported": res.Imported, "failed": len(res.Failed)},
	})
	return res, nil
}

// ImportOne creates a single snippet from its portable form, creating the
// category by name when it does not exist yet. It skips the per-snippet
// audit entry; callers record one entry for the whole batch.
func (s *SnippetService) ImportOne(ctx context.Context, actor Actor, item ExportedSnippet) (*model.Snippet, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags(item.Tags)
	if err != nil {
		return nil, err
	}

	vis := model.Visibility(strings.ToUpper(strings.TrimSpace(string(item.Visibility))))
	if !vis.Valid() || vis == model.VisibilityTeam {
		vis = settings.DefaultVisibility
		if vis == model.VisibilityTeam {
			vis = model.VisibilityPrivate
		}
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Untitled"
	}

	sn := &model.Snippet{
		UserID:       actor.UserID,
		Title:        truncateRunes(title, MaxTitleLength),
		Description:  truncateRunes(strings.TrimSpace(item.Description), MaxDescriptionLength),
		Code:         item.Code,
		Language:     s.langs.Normalize(item.Language),
		Visibility:   vis,
		Tags:         tags,
		Status:       initialStatus(actor, settings),
		VersionMajor: 1,
	}
	if name := strings.TrimSpace(item.Category); name != "" {
		id, err := s.categoryByName(ctx, name)
		if err != nil {
			return nil, err
		}
		sn.CategoryID = &id
	}
	if err := s.validateContent(sn, settings); err != nil {
		return nil, err
	}
	if err := s.scan(actor, sn, settings); err != nil {
		return nil, err
	}

	version := &model.SnippetVersion{
		Major:      1,
		Title:      sn.Title,
		Code:       sn.Code,
		ChangeNote: "imported",
		CreatedBy:  actor.UserID,
	}
	if err := s.repo.Create(ctx, sn, version); err != nil {
		return nil, fmt.Errorf("importing snippet: %w", err)
	}
	return sn, nil
}

func (s *SnippetService) categoryByName(ctx context.Context, name string) (string, error) {
	name = truncateRunes(name, MaxCategoryNameLength)
	c, err := s.categories.GetByName(ctx, name)
	if err == nil {
		return c.ID, nil
	}
	if !isNotFound(err) {
		return "", err
	}

	c = &model.Category{Name: name, Color: DefaultCategoryColor}
	if err := s.categories.Create(ctx, c); err != nil {
		// A concurrent import may have created it in the meantime.
		if existing, getErr := s.categories.GetByName(ctx, name); getErr == nil {
			return existing.ID, nil
		}
		return "", err
	}
	s.logger.Info("category created by import", slog.String("name", name))
	return c.ID, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
