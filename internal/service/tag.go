package service

import (
	"context"
	"log/slog"

	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// TagService exposes the global tag list. Tags are created implicitly by
// snippet writes.
type TagService struct {
	repo   repository.TagRepository
	audit  *AuditService
	logger *slog.Logger
}

func NewTagService(repo repository.TagRepository, audit *AuditService, logger *slog.Logger) *TagService {
	return &TagService{repo: repo, audit: audit, logger: logger}
}

// List returns tags with usage counts. With mine set, only the caller's
// snippets are counted.
func (s *TagService) List(ctx context.Context, actor Actor, mine bool) ([]model.Tag, error) {
	owner := ""
	if mine {
		if err := requireUser(actor); err != nil {
			return nil, err
		}
		owner = actor.UserID
	}
	return s.repo.List(ctx, owner)
}

// Delete removes a tag from every snippet.
func (s *TagService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, t.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionTagDelete, EntityID: t.ID, Details: map[string]any{"name": t.Name}})
	return nil
}

// Cleanup deletes tags no snippet uses any more.
func (s *TagService) Cleanup(ctx context.Context, actor Actor) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteOrphans(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("orphan tags removed", slog.Int64("count", n))
	}
	return n, nil
}
