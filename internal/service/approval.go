package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/mail"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// ApprovalService moderates snippets written while require_approval is on.
type ApprovalService struct {
	snippets repository.SnippetRepository
	users    repository.UserRepository
	mail     *TemplateService
	audit    *AuditService
	logger   *slog.Logger
}

func NewApprovalService(
	snippets repository.SnippetRepository,
	users repository.UserRepository,
	mail *TemplateService,
	audit *AuditService,
	logger *slog.Logger,
) *ApprovalService {
	return &ApprovalService{snippets: snippets, users: users, mail: mail, audit: audit, logger: logger}
}

// Pending lists snippets waiting for a decision, oldest change first.
func (s *ApprovalService) Pending(ctx context.Context, actor Actor, limit, offset int) (*Page[model.Snippet], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	page := clampPage(limit, offset)
	items, total, err := s.snippets.List(ctx, repository.SnippetFilter{
		ViewerID:      actor.UserID,
		ViewerIsAdmin: true,
		Status:        model.StatusPending,
		Sort:          repository.SortUpdated,
		Limit:         page.Limit,
		Offset:        page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pending snippets: %w", err)
	}
	return &Page[model.Snippet]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *ApprovalService) Approve(ctx context.Context, actor Actor, id string) (*model.Snippet, error) {
	sn, err := s.decide(ctx, actor, id, model.StatusApproved, "")
	if err != nil {
		return nil, err
	}
	s.notify(ctx, sn, mail.KeySnippetApproved, "")
	return sn, nil
}

// Reject needs a reason; the author sees it in the snippet and the email.
func (s *ApprovalService) Reject(ctx context.Context, actor Actor, id, reason string) (*model.Snippet, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.ValidationFailed("reason", "a rejection reason is required")
	}
	if len([]rune(reason)) > 1000 {
		return nil, apperror.ValidationFailed("reason", "reason must be at most 1000 characters")
	}
	sn, err := s.decide(ctx, actor, id, model.StatusRejected, reason)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, sn, mail.KeySnippetRejected, reason)
	return sn, nil
}

func (s *ApprovalService) decide(ctx context.Context, actor Actor, id string, status model.Status, reason string) (*model.Snippet, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	sn, err := s.snippets.GetByID(ctx, id, actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.snippets.SetStatus(ctx, sn.ID, status, reason); err != nil {
		return nil, err
	}
	sn.Status, sn.RejectionReason = status, reason

	action := ActionSnippetApprove
	if status == model.StatusRejected {
		action = ActionSnippetReject
	}
	s.logger.Info("snippet moderated", slog.String("id", sn.ID), slog.String("status", string(status)))
	details := map[string]any{"title": sn.Title}
	if reason != "" {
		details["reason"] = reason
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: action, EntityID: sn.ID, Details: details})
	return sn, nil
}

func (s *ApprovalService) notify(ctx context.Context, sn *model.Snippet, key, reason string) {
	author, err := s.users.GetByID(ctx, sn.UserID)
	if err != nil {
		s.logger.Warn("cannot notify snippet author", slog.String("id", sn.ID), slog.String("error", err.Error()))
		return
	}
	s.mail.Notify(ctx, key, author.Email, map[string]any{
		"Username":     author.Username,
		"SnippetTitle": sn.Title,
		"Reason":       reason,
	})
}
