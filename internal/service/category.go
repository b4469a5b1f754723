package service

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

const (
	MaxCategoryNameLength        = 50
	MaxCategoryDescriptionLength = 500
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type CategoryInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// CategoryService manages the global, admin-curated categories.
type CategoryService struct {
	repo   repository.CategoryRepository
	audit  *AuditService
	logger *slog.Logger
}

func NewCategoryService(repo repository.CategoryRepository, audit *AuditService, logger *slog.Logger) *CategoryService {
	return &CategoryService{repo: repo, audit: audit, logger: logger}
}

// List is public: categories label public snippets too.
func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) Create(ctx context.Context, actor Actor, in CategoryInput) (*model.Category, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateCategory(&in); err != nil {
		return nil, err
	}
	c := &model.Category{Name: in.Name, Color: in.Color, Description: in.Description}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionCategoryCreate, EntityID: c.ID, Details: map[string]any{"name": c.Name}})
	return c, nil
}

func (s *CategoryService) Update(ctx context.Context, actor Actor, id string, in CategoryInput) (*model.Category, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateCategory(&in); err != nil {
		return nil, err
	}
	c.Name, c.Color, c.Description = in.Name, in.Color, in.Description
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionCategoryUpdate, EntityID: c.ID, Details: map[string]any{"name": c.Name}})
	return c, nil
}

// Delete removes the category; its snippets become uncategorized.
func (s *CategoryService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, c.ID); err != nil {
		return err
	}
	s.logger.Info("category deleted", slog.String("id", c.ID), slog.String("name", c.Name))
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionCategoryDelete, EntityID: c.ID, Details: map[string]any{"name": c.Name}})
	return nil
}

func validateCategory(in *CategoryInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Color = strings.ToUpper(strings.TrimSpace(in.Color))
	if in.Color == "" {
		in.Color = DefaultCategoryColor
	}
	return validationError(validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, MaxCategoryNameLength)),
		validation.Field(&in.Color, validation.Match(hexColor).Error("must be a #RRGGBB color")),
		validation.Field(&in.Description, validation.RuneLength(0, MaxCategoryDescriptionLength)),
	))
}
