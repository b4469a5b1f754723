package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
)

// Bulk actions.
const (
	BulkDelete     = "delete"
	BulkMove       = "move"
	BulkTag        = "tag"
	BulkVisibility = "visibility"
)

// MaxBulkIDs caps a single bulk request.
const MaxBulkIDs = 100

// BulkRequest applies one action to many snippets. FolderID is used by
// move (nil or "" moves to the root), Tags by tag and Visibility by
// visibility.
type BulkRequest struct {
	Action     string           `json:"action"`
	IDs        []string         `json:"ids"`
	FolderID   *string          `json:"folderId"`
	Tags       []string         `json:"tags"`
	Visibility model.Visibility `json:"visibility"`
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult reports per-id outcomes. A failing id never stops the rest.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Bulk runs req over every id the caller may edit. Ids the caller cannot
// see or edit are reported as failures, not as a request error.
func (s *SnippetService) Bulk(ctx context.Context, actor Actor, req BulkRequest) (*BulkResult, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if err := requirePro(s.license, "bulk actions"); err != nil {
		return nil, err
	}

	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	req.Visibility = model.Visibility(strings.ToUpper(string(req.Visibility)))
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Action, validation.Required,
			validation.In(BulkDelete, BulkMove, BulkTag, BulkVisibility)),
		validation.Field(&req.IDs, validation.Required, validation.Length(1, MaxBulkIDs)),
		validation.Field(&req.Tags, validation.When(req.Action == BulkTag, validation.Required)),
		validation.Field(&req.Visibility, validation.When(req.Action == BulkVisibility, validation.Required,
			validation.In(model.VisibilityPrivate, model.VisibilityTeam, model.VisibilityPublic))),
	)
	if err != nil {
		return nil, validationError(err)
	}

	var tags []string
	if req.Action == BulkTag {
		if tags, err = normalizeTags(req.Tags); err != nil {
			return nil, err
		}
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	seen := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if err := s.bulkOne(ctx, actor, req, id, tags, settings); err != nil {
			res.Failed = append(res.Failed, BulkFailure{ID: id, Error: bulkMessage(err)})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	if req.Action == BulkDelete && len(res.Succeeded) > 0 {
		s.cleanupTags(ctx)
	}

	s.logger.Info("bulk snippet action",
		slog.String("action", req.Action),
		slog.Int("succeeded", len(res.Succeeded)),
		slog.Int("failed", len(res.Failed)),
	)
	s.audit.Record(ctx, actor, AuditEntry{
		Action:     ActionSnippetBulk,
		EntityType: "snippet",
		Details: map[string]any{
			"action":    req.Action,
			"succeeded": res.Succeeded,
			"failed":    len(res.Failed),
		},
	})
	return res, nil
}

func (s *SnippetService) bulkOne(ctx context.Context, actor Actor, req BulkRequest, id string, tags []string, settings model.SystemSettings) error {
	sn, err := s.loadForEdit(ctx, actor, id)
	if err != nil {
		return err
	}

	switch req.Action {
	case BulkDelete:
		return s.repo.Delete(ctx, sn.ID)
	case BulkMove:
		sn.FolderID = emptyToNil(req.FolderID)
	case BulkTag:
		sn.Tags = mergeTags(sn.Tags, tags)
		if len(sn.Tags) > MaxTags {
			return apperror.ValidationFailed("tags", "too many tags")
		}
	case BulkVisibility:
		sn.Visibility = req.Visibility
		if settings.RequireApproval && !actor.IsAdmin() && sn.Visibility != model.VisibilityPrivate {
			sn.Status = model.StatusPending
		}
	}
	if err := s.checkRefs(ctx, actor, sn.UserID, sn, sn.TeamID); err != nil {
		return err
	}
	return s.repo.Update(ctx, sn, nil)
}

func mergeTags(have, add []string) []string {
	out := append([]string{}, have...)
	for _, t := range add {
		dup := false
		for _, h := range have {
			if h == t {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}

// bulkMessage keeps the per-id error short; AppError messages are already
// meant for clients, anything else is hidden.
func bulkMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
