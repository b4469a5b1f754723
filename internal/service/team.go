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

type TeamInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MemberInput adds a member by id or by username.
type MemberInput struct {
	UserID   string         `json:"userId"`
	Username string         `json:"username"`
	Role     model.TeamRole `json:"role"`
}

// TeamService manages teams and memberships. Teams are a Pro feature.
//
// Team owners (role OWNER) and admins manage a team; members can read its
// TEAM snippets and leave.
type TeamService struct {
	repo    repository.TeamRepository
	users   repository.UserRepository
	license LicenseChecker
	audit   *AuditService
	logger  *slog.Logger
}

func NewTeamService(
	repo repository.TeamRepository,
	users repository.UserRepository,
	license LicenseChecker,
	audit *AuditService,
	logger *slog.Logger,
) *TeamService {
	return &TeamService{repo: repo, users: users, license: license, audit: audit, logger: logger}
}

func (s *TeamService) guard(actor Actor) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	return requirePro(s.license, "teams")
}

// List returns the caller's teams; admins see all teams.
func (s *TeamService) List(ctx context.Context, actor Actor) ([]model.Team, error) {
	if err := s.guard(actor); err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return s.repo.List(ctx, "")
	}
	return s.repo.List(ctx, actor.UserID)
}

// Get returns a team with members. Non-members get NotFound.
func (s *TeamService) Get(ctx context.Context, actor Actor, id string) (*model.Team, error) {
	if err := s.guard(actor); err != nil {
		return nil, err
	}
	team, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && memberRole(team, actor.UserID) == "" {
		return nil, apperror.NotFound("team", id)
	}
	return team, nil
}

func (s *TeamService) Create(ctx context.Context, actor Actor, in TeamInput) (*model.Team, error) {
	if err := s.guard(actor); err != nil {
		return nil, err
	}
	if err := validateTeam(&in); err != nil {
		return nil, err
	}
	team := &model.Team{Name: in.Name, Description: in.Description, OwnerID: actor.UserID}
	if err := s.repo.Create(ctx, team); err != nil {
		return nil, err
	}
	s.logger.Info("team created", slog.String("id", team.ID), slog.String("owner_id", actor.UserID))
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionTeamCreate, EntityID: team.ID, Details: map[string]any{"name": team.Name}})
	return s.repo.GetByID(ctx, team.ID)
}

func (s *TeamService) Update(ctx context.Context, actor Actor, id string, in TeamInput) (*model.Team, error) {
	team, err := s.manage(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := validateTeam(&in); err != nil {
		return nil, err
	}
	team.Name, team.Description = in.Name, in.Description
	if err := s.repo.Update(ctx, team); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionTeamUpdate, EntityID: team.ID, Details: map[string]any{"name": team.Name}})
	return s.repo.GetByID(ctx, team.ID)
}

// Delete removes the team. Its TEAM snippets stay with their owners.
func (s *TeamService) Delete(ctx context.Context, actor Actor, id string) error {
	team, err := s.manage(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, team.ID); err != nil {
		return err
	}
	s.logger.Info("team deleted", slog.String("id", team.ID))
	s.audit.Record(ctx, actor, AuditEntry{Action: ActionTeamDelete, EntityID: team.ID, Details: map[string]any{"name": team.Name}})
	return nil
}

// AddMember adds a user or changes the role of an existing member.
func (s *TeamService) AddMember(ctx context.Context, actor Actor, teamID string, in MemberInput) (*model.Team, error) {
	team, err := s.manage(ctx, actor, teamID)
	if err != nil {
		return nil, err
	}

	var user *model.User
	switch {
	case strings.TrimSpace(in.UserID) != "":
		user, err = s.users.GetByID(ctx, strings.TrimSpace(in.UserID))
	case strings.TrimSpace(in.Username) != "":
		user, err = s.users.GetByLogin(ctx, strings.TrimSpace(in.Username))
	default:
		return nil, apperror.ValidationFailed("userId", "userId or username is required")
	}
	if err != nil {
		return nil, err
	}

	role := model.TeamRole(strings.ToUpper(string(in.Role)))
	if role == "" {
		role = model.TeamRoleMember
	}
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", "role must be OWNER or MEMBER")
	}
	if memberRole(team, user.ID) == model.TeamRoleOwner && role != model.TeamRoleOwner {
		if err := s.keepOwner(ctx, team.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.AddMember(ctx, &model.TeamMember{TeamID: team.ID, UserID: user.ID, Role: role}); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, AuditEntry{
		Action:   ActionTeamMemberAdd,
		EntityID: team.ID,
		Details:  map[string]any{"userId": user.ID, "username": user.Username, "role": role},
	})
	return s.repo.GetByID(ctx, team.ID)
}

// RemoveMember removes userID from the team. Members may remove
// themselves; the last OWNER cannot leave.
func (s *TeamService) RemoveMember(ctx context.Context, actor Actor, teamID, userID string) error {
	if err := s.guard(actor); err != nil {
		return err
	}
	team, err := s.repo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if userID != actor.UserID && !canManage(actor, team) {
		return apperror.Forbidden("only team owners can remove members")
	}
	role := memberRole(team, userID)
	if role == "" {
		return apperror.NotFound("team member", userID)
	}
	if role == model.TeamRoleOwner {
		if err := s.keepOwner(ctx, team.ID); err != nil {
			return err
		}
	}

	if err := s.repo.RemoveMember(ctx, team.ID, userID); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, AuditEntry{
		Action:   ActionTeamMemberRemove,
		EntityID: team.ID,
		Details:  map[string]any{"userId": userID},
	})
	return nil
}

// keepOwner fails when the team has a single OWNER left.
func (s *TeamService) keepOwner(ctx context.Context, teamID string) error {
	n, err := s.repo.CountOwners(ctx, teamID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperror.ValidationFailed("role", "a team must keep at least one owner")
	}
	return nil
}

func (s *TeamService) manage(ctx context.Context, actor Actor, id string) (*model.Team, error) {
	if err := s.guard(actor); err != nil {
		return nil, err
	}
	team, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, team) {
		if memberRole(team, actor.UserID) == "" {
			return nil, apperror.NotFound("team", id)
		}
		return nil, apperror.Forbidden("only team owners can manage this team")
	}
	return team, nil
}

func canManage(actor Actor, team *model.Team) bool {
	return actor.IsAdmin() || memberRole(team, actor.UserID) == model.TeamRoleOwner
}

func memberRole(team *model.Team, userID string) model.TeamRole {
	for _, m := range team.Members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return ""
}

func validateTeam(in *TeamInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return validationError(validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.Description, validation.RuneLength(0, 1000)),
	))
}
