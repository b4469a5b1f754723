package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/auth"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// NewUserInput is the admin "create user" payload.
type NewUserInput struct {
	RegisterInput
	Role model.Role `json:"role"`
}

// UserPatch is the admin edit of another account.
type UserPatch struct {
	Role   *model.Role `json:"role"`
	Active *bool       `json:"active"`
}

// UserAdminService is the admin-only user management used by
// /api/admin/users. Self-service lives in AuthService.
//
// WHY guard the last admin?
// Demoting, deactivating or deleting the only active admin would leave the
// instance without anyone able to change settings or moderate, and there
// is no way back short of editing the database.
type UserAdminService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	audit     *AuditService
	logger    *slog.Logger
}

func NewUserAdminService(users repository.UserRepository, passwords *auth.PasswordService, audit *AuditService, logger *slog.Logger) *UserAdminService {
	return &UserAdminService{users: users, passwords: passwords, audit: audit, logger: logger}
}

func (s *UserAdminService) List(ctx context.Context, actor Actor, query string, role model.Role, limit, offset int) (*Page[model.User], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if role != "" {
		role = model.Role(strings.ToUpper(string(role)))
		if !role.Valid() {
			return nil, apperror.ValidationFailed("role", "role must be USER or ADMIN")
		}
	}
	page := clampPage(limit, offset)
	items, total, err := s.users.List(ctx, repository.UserFilter{
		Query:  strings.TrimSpace(query),
		Role:   role,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &Page[model.User]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *UserAdminService) Get(ctx context.Context, actor Actor, id string) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

func (s *UserAdminService) Create(ctx context.Context, actor Actor, in NewUserInput) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateCredentials(&in.RegisterInput); err != nil {
		return nil, err
	}
	role := model.Role(strings.ToUpper(string(in.Role)))
	if role == "" {
		role = model.RoleUser
	}
	if err := validation.Validate(role, validation.In(model.RoleUser, model.RoleAdmin)); err != nil {
		return nil, apperror.ValidationFailed("role", "role must be USER or ADMIN")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created by admin", slog.String("id", user.ID), slog.String("role", string(role)))
	s.audit.Record(ctx, actor, AuditEntry{
		Action:   ActionUserCreate,
		EntityID: user.ID,
		Details:  map[string]any{"username": user.Username, "role": role},
	})
	return user, nil
}

func (s *UserAdminService) Update(ctx context.Context, actor Actor, id string, patch UserPatch) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := map[string]any{}
	// Only an active admin counts towards the admin quorum; demoting an
	// already deactivated admin takes nothing away.
	wasActiveAdmin := user.Role == model.RoleAdmin && user.Active
	if patch.Role != nil {
		role := model.Role(strings.ToUpper(string(*patch.Role)))
		if !role.Valid() {
			return nil, apperror.ValidationFailed("role", "role must be USER or ADMIN")
		}
		user.Role = role
		changed["role"] = role
	}
	if patch.Active != nil {
		user.Active = *patch.Active
		changed["active"] = user.Active
	}
	losesAdmin := wasActiveAdmin && (user.Role != model.RoleAdmin || !user.Active)

	if losesAdmin {
		if user.ID == actor.UserID {
			return nil, apperror.ValidationFailed("role", "you cannot demote or deactivate yourself")
		}
		if err := s.keepAdmin(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionUserUpdate, EntityID: user.ID, Details: changed})
	return user, nil
}

// Delete removes an account and everything it owns.
func (s *UserAdminService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.UserID {
		return apperror.ValidationFailed("id", "you cannot delete your own account")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == model.RoleAdmin && user.Active {
		if err := s.keepAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.String("id", user.ID), slog.String("by", actor.UserID))
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionUserDelete, EntityID: user.ID, Details: map[string]any{"username": user.Username}})
	return nil
}

func (s *UserAdminService) keepAdmin(ctx context.Context) error {
	n, err := s.users.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperror.ValidationFailed("role", "the last active admin cannot be removed")
	}
	return nil
}
