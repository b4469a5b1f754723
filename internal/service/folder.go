package service

import (
	"context"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

const MaxFolderNameLength = 100

// FolderInput creates a folder or, in Update, renames and/or moves one.
// In Update a nil ParentID leaves the parent alone and a pointer to ""
// moves the folder to the root.
type FolderInput struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parentId"`
}

// FolderService manages a user's private folder tree. Folders are never
// shared, not even with admins.
type FolderService struct {
	repo   repository.FolderRepository
	logger *slog.Logger
}

func NewFolderService(repo repository.FolderRepository, logger *slog.Logger) *FolderService {
	return &FolderService{repo: repo, logger: logger}
}

func (s *FolderService) List(ctx context.Context, actor Actor) ([]model.Folder, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, actor.UserID)
}

func (s *FolderService) Create(ctx context.Context, actor Actor, in FolderInput) (*model.Folder, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	name, err := folderName(in.Name)
	if err != nil {
		return nil, err
	}
	parentID := emptyToNil(in.ParentID)

	all, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if parentID != nil && findFolder(all, *parentID) == nil {
		return nil, apperror.ValidationFailed("parentId", "parent folder not found")
	}
	if siblingExists(all, parentID, name, "") {
		return nil, folderConflict(name)
	}

	f := &model.Folder{UserID: actor.UserID, ParentID: parentID, Name: name}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info("folder created", slog.String("id", f.ID), slog.String("user_id", actor.UserID))
	return f, nil
}

// Update renames and/or moves a folder. A folder cannot be moved under
// itself or any of its descendants.
func (s *FolderService) Update(ctx context.Context, actor Actor, id string, in FolderInput) (*model.Folder, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	all, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	f := findFolder(all, id)
	if f == nil {
		return nil, apperror.NotFound("folder", id)
	}

	if in.Name != nil {
		if f.Name, err = folderName(in.Name); err != nil {
			return nil, err
		}
	}
	if in.ParentID != nil {
		parentID := emptyToNil(in.ParentID)
		if parentID != nil {
			if findFolder(all, *parentID) == nil {
				return nil, apperror.ValidationFailed("parentId", "parent folder not found")
			}
			if isDescendant(all, *parentID, f.ID) {
				return nil, apperror.ValidationFailed("parentId", "a folder cannot be moved into itself or one of its subfolders")
			}
		}
		f.ParentID = parentID
	}
	if siblingExists(all, f.ParentID, f.Name, f.ID) {
		return nil, folderConflict(f.Name)
	}

	if err := s.repo.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes the folder and its subfolders; their snippets move to the
// root.
func (s *FolderService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if f.UserID != actor.UserID {
		return apperror.NotFound("folder", id)
	}
	if err := s.repo.Delete(ctx, f.ID); err != nil {
		return err
	}
	s.logger.Info("folder deleted", slog.String("id", f.ID), slog.String("user_id", actor.UserID))
	return nil
}

func folderName(p *string) (string, error) {
	var name string
	if p != nil {
		name = strings.TrimSpace(*p)
	}
	err := validation.Validate(name, validation.Required, validation.RuneLength(1, MaxFolderNameLength))
	if err != nil {
		return "", apperror.ValidationFailed("name", "name: "+err.Error())
	}
	return name, nil
}

func folderConflict(name string) error {
	e := apperror.Conflict("folder", name)
	e.Field = "name"
	return e
}

func findFolder(all []model.Folder, id string) *model.Folder {
	for i := range all {
		if all[i].ID == id {
			return &all[i]
		}
	}
	return nil
}

// isDescendant reports whether id is ancestor itself or lies below it.
// The walk is bounded by the number of folders, so a corrupt cycle in the
// stored data cannot loop forever.
func isDescendant(all []model.Folder, id, ancestor string) bool {
	cur := id
	for range len(all) + 1 {
		if cur == ancestor {
			return true
		}
		f := findFolder(all, cur)
		if f == nil || f.ParentID == nil {
			return false
		}
		cur = *f.ParentID
	}
	return true
}

func siblingExists(all []model.Folder, parentID *string, name, exceptID string) bool {
	for _, f := range all {
		if f.ID == exceptID || !strings.EqualFold(f.Name, name) {
			continue
		}
		if (f.ParentID == nil && parentID == nil) ||
			(f.ParentID != nil && parentID != nil && *f.ParentID == *parentID) {
			return true
		}
	}
	return false
}
